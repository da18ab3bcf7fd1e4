package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ActiveSession is the game the CLI acts on when no --session flag is given.
type ActiveSession struct {
	SessionID string `json:"session_id"`
	APIBase   string `json:"api_base,omitempty"`
}

// BaseDir is ~/.guildhall, created on first use.
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".guildhall")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func sessionFile() (string, error) {
	dir, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

func SaveSession(s ActiveSession) error {
	path, err := sessionFile()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

func LoadSession() (ActiveSession, error) {
	path, err := sessionFile()
	if err != nil {
		return ActiveSession{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ActiveSession{}, fmt.Errorf("no active session, run `guildhall new` first")
		}
		return ActiveSession{}, err
	}
	var s ActiveSession
	if err := json.Unmarshal(body, &s); err != nil {
		return ActiveSession{}, err
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ActiveSession{}, fmt.Errorf("no session id found in %s", path)
	}
	return s, nil
}

func ClearSession() error {
	path, err := sessionFile()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
