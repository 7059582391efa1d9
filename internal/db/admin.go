package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the operator debug surface on mux: a tailSQL
// console for read-only queries against the live database, and an on-demand
// backup download. Routes land under /debug/ with tsweb's access checks.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{
		Label: "Vessel DB",
	})

	debug := tsweb.Debugger(mux)
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.handleBackup))
	return nil
}

// handleBackup snapshots the database with VACUUM INTO and streams the copy
// back gzipped. The scratch file lives in the OS temp directory and is
// removed once the response has been written.
func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("ais-backup-%d.db", time.Now().UnixNano())
	scratch := filepath.Join(os.TempDir(), name)

	if _, err := db.Exec("VACUUM INTO ?", scratch); err != nil {
		http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer os.Remove(scratch)

	f, err := os.Open(scratch)
	if err != nil {
		http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	// Content-Encoding gzip: the transfer is compressed, the client saves
	// the plain .db named by the disposition.
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		// Headers are already out; the download arrives truncated.
		log.Printf("backup download aborted: %v", err)
	}
}
