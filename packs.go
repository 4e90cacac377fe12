package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	_ "modernc.org/sqlite"
)

// packStore persists named prompt packs per username, so players can
// reuse their custom prompt lists across rooms. Flat key-value storage:
// prompts are stored newline-joined, keyed by (username, pack name).
type packStore struct {
	db *sql.DB
}

func openPackStore(path string) (*packStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS prompt_packs (
		username TEXT NOT NULL,
		name TEXT NOT NULL,
		prompts TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (username, name)
	);`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &packStore{db: db}, nil
}

func (s *packStore) Close() error {
	return s.db.Close()
}

func (s *packStore) List(username string) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM prompt_packs WHERE username = ? ORDER BY name`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *packStore) Get(username, name string) ([]string, error) {
	var joined string
	err := s.db.QueryRow(`SELECT prompts FROM prompt_packs WHERE username = ? AND name = ?`, username, name).Scan(&joined)
	if err != nil {
		return nil, err
	}
	if joined == "" {
		return []string{}, nil
	}
	return strings.Split(joined, "\n"), nil
}

func (s *packStore) Put(username, name string, prompts []string) error {
	_, err := s.db.Exec(`INSERT INTO prompt_packs (username, name, prompts) VALUES (?, ?, ?)
		ON CONFLICT (username, name) DO UPDATE SET prompts = excluded.prompts, updated_at = CURRENT_TIMESTAMP`,
		username, name, strings.Join(prompts, "\n"))
	return err
}

func (s *packStore) Delete(username, name string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM prompt_packs WHERE username = ? AND name = ?`, username, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type promptPack struct {
	Name    string   `json:"name"`
	Prompts []string `json:"prompts"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	securityHeaders(cfg, w)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func listPacksHandler(cfg *Config, store *packStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		names, err := store.List(ps.ByName("username"))
		if err != nil {
			writeJSON(cfg, w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
			return
		}
		writeJSON(cfg, w, http.StatusOK, names)
	}
}

func getPackHandler(cfg *Config, store *packStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		name := ps.ByName("name")
		prompts, err := store.Get(ps.ByName("username"), name)
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(cfg, w, http.StatusNotFound, map[string]string{"error": "pack not found"})
			return
		}
		if err != nil {
			writeJSON(cfg, w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
			return
		}
		writeJSON(cfg, w, http.StatusOK, promptPack{Name: name, Prompts: prompts})
	}
}

func putPackHandler(cfg *Config, logger *slog.Logger, store *packStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var pack promptPack
		if err := json.NewDecoder(r.Body).Decode(&pack); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}

		valid := make([]string, 0, len(pack.Prompts))
		for _, prompt := range pack.Prompts {
			if _, ok := parsePrompt(prompt); ok {
				valid = append(valid, prompt)
			}
		}
		if len(valid) == 0 {
			writeJSON(cfg, w, http.StatusBadRequest, map[string]string{"error": "no valid prompts"})
			return
		}

		username := ps.ByName("username")
		name := ps.ByName("name")
		if err := store.Put(username, name, valid); err != nil {
			writeJSON(cfg, w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
			return
		}

		logger.Debug("PACKS: Saved pack", "username", username, "pack", name, "prompts", len(valid))
		writeJSON(cfg, w, http.StatusOK, promptPack{Name: name, Prompts: valid})
	}
}

func deletePackHandler(cfg *Config, store *packStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		deleted, err := store.Delete(ps.ByName("username"), ps.ByName("name"))
		if err != nil {
			writeJSON(cfg, w, http.StatusInternalServerError, map[string]string{"error": "storage failure"})
			return
		}
		if !deleted {
			writeJSON(cfg, w, http.StatusNotFound, map[string]string{"error": "pack not found"})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func registerPackRoutes(cfg *Config, logger *slog.Logger, store *packStore, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/packs/:username", listPacksHandler(cfg, store))
	mux.GET(cfg.prefix+"/packs/:username/:name", getPackHandler(cfg, store))
	mux.PUT(cfg.prefix+"/packs/:username/:name", putPackHandler(cfg, logger, store))
	mux.DELETE(cfg.prefix+"/packs/:username/:name", deletePackHandler(cfg, store))
}
