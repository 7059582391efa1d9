package loader

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/monitoring"
)

// Stream reads points from the file at path in chunks of chunkSize rows,
// sorts each chunk by timestamp and hands it to emit. Unlike Load it never
// materialises the whole file, so ordering is only guaranteed within a
// chunk. Returns the number of valid points seen and the number of rows
// skipped. An error from emit aborts the scan.
func Stream(path string, chunkSize int, emit func(batch []ais.Point) error) (processed, skipped int, err error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	src, err := openData(path)
	if err != nil {
		return 0, 0, err
	}
	defer src.Close()

	rr, parser, err := newRecordSource(src, path)
	if err != nil {
		if errors.Is(err, errEmptyInput) {
			return 0, 0, fmt.Errorf("failed to read file %s: empty input", path)
		}
		return 0, 0, err
	}

	batch := make([]ais.Point, 0, chunkSize)
	inChunk := 0
	chunks := 0

	flush := func() error {
		inChunk = 0
		if len(batch) == 0 {
			return nil
		}
		sort.SliceStable(batch, func(i, j int) bool {
			return batch[i].Timestamp.Before(batch[j].Timestamp)
		})
		if err := emit(batch); err != nil {
			return err
		}
		processed += len(batch)
		batch = make([]ais.Point, 0, chunkSize)
		chunks++
		if chunks%10 == 0 {
			monitoring.Logf("loader: streamed %d chunks, %d valid points, %d skipped", chunks, processed, skipped)
		}
		return nil
	}

	for {
		fields, rerr := rr.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return processed, skipped, fmt.Errorf("failed to read file %s: %w", path, rerr)
		}
		inChunk++
		p, perr := parser.parse(fields)
		if perr != nil {
			skipped++
		} else {
			batch = append(batch, p)
		}
		if inChunk >= chunkSize {
			if err := flush(); err != nil {
				return processed, skipped, err
			}
		}
	}
	if err := flush(); err != nil {
		return processed, skipped, err
	}

	monitoring.Logf("loader: finished streaming %s: %d valid points, %d skipped", path, processed, skipped)
	return processed, skipped, nil
}
