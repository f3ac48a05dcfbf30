package store

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// File is a durable key/value store persisted as YAML.
// An empty path keeps values in memory only.
type File struct {
	mu    sync.Mutex
	path  string
	state state
}

type state struct {
	UpdatedAt time.Time         `yaml:"updated_at"`
	Values    map[string]string `yaml:"values"`
}

// Open loads the store from disk. If the file is missing, returns an empty store.
func Open(path string) (*File, error) {
	f := &File{path: path, state: state{Values: map[string]string{}}}
	if path == "" {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, &f.state); err != nil {
		return nil, err
	}
	if f.state.Values == nil {
		f.state.Values = map[string]string{}
	}
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// UpdatedAt returns the time of the last successful save.
func (f *File) UpdatedAt() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.UpdatedAt
}

// Get returns the value stored under key.
func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.state.Values[key]
	return v, ok
}

// Set stores value under key and writes the file.
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Values[key] = value
	return f.saveLocked()
}

// Remove deletes key and writes the file.
func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.state.Values[key]; !ok {
		return nil
	}
	delete(f.state.Values, key)
	return f.saveLocked()
}

func (f *File) saveLocked() error {
	if f.path == "" {
		return nil
	}
	f.state.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(&f.state)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(f.path, data, 0o600)
}
