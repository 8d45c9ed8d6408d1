package prompt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/kailas-cloud/docextract/internal/db"
	"github.com/kailas-cloud/docextract/internal/domain"
)

var kvKeyPrefix = domain.KeyPrefix + "prompt:"

// FSSource reads <key>.txt from a filesystem (a directory or the embedded defaults).
type FSSource struct {
	fsys fs.FS
}

// NewFSSource creates a filesystem-backed source.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// Load reads the template file for key.
func (s *FSSource) Load(_ context.Context, key domain.PromptKey) (string, error) {
	name := string(key) + ".txt"
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return "", &domain.ConfigurationError{
			Key: string(key),
			Msg: fmt.Sprintf("prompt template %s is missing or unreadable", name),
			Err: err,
		}
	}
	return nonEmpty(key, string(data))
}

// store is the consumer interface for the key-value prompt source (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// KVSource reads templates from docextract:prompt:<key> in the key-value store.
type KVSource struct {
	store store
}

// NewKVSource creates a key-value backed source.
func NewKVSource(s store) *KVSource {
	return &KVSource{store: s}
}

// Load reads the template stored under key.
func (s *KVSource) Load(ctx context.Context, key domain.PromptKey) (string, error) {
	data, err := s.store.Get(ctx, kvKeyPrefix+string(key))
	if err != nil {
		msg := fmt.Sprintf("prompt template %q is unreadable", key)
		if errors.Is(err, db.ErrKeyNotFound) {
			msg = fmt.Sprintf("prompt template %q is missing", key)
		}
		return "", &domain.ConfigurationError{Key: string(key), Msg: msg, Err: err}
	}
	return nonEmpty(key, string(data))
}

// KVKey returns the store key holding the template for key.
func KVKey(key domain.PromptKey) string {
	return kvKeyPrefix + string(key)
}

func nonEmpty(key domain.PromptKey, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &domain.ConfigurationError{
			Key: string(key),
			Msg: fmt.Sprintf("prompt template %q is empty", key),
		}
	}
	return text, nil
}
