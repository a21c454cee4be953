package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
)

// NewManifest returns a manifest stamped with a fresh build ID and the
// current time.
func NewManifest() Manifest {
	return Manifest{
		FormatVersion: FormatVersion,
		BuildID:       uuid.NewString(),
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

// WriteManifest writes m as indented JSON.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return dverrors.InternalError("failed to encode manifest", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return dverrors.New(dverrors.ErrCodeIndexWrite, "failed to write manifest", err)
	}
	return nil
}

// ReadManifest loads and sanity-checks a manifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, dverrors.New(dverrors.ErrCodeFileNotFound,
				fmt.Sprintf("no index manifest at %s", path), err).
				WithSuggestion("build an index first with: docvec build")
		}
		return m, dverrors.New(dverrors.ErrCodeCorruptIndex, "failed to read manifest", err)
	}

	if err := json.Unmarshal(data, &m); err != nil {
		return m, dverrors.New(dverrors.ErrCodeCorruptIndex,
			fmt.Sprintf("manifest %s is not valid JSON", path), err)
	}
	if m.FormatVersion != FormatVersion {
		return m, dverrors.New(dverrors.ErrCodeCorruptIndex,
			fmt.Sprintf("index format version %d is not supported (want %d)", m.FormatVersion, FormatVersion), nil).
			WithSuggestion("rebuild the index with docvec build")
	}
	if _, err := uuid.Parse(m.BuildID); err != nil {
		return m, dverrors.New(dverrors.ErrCodeCorruptIndex, "manifest has an invalid build_id", err)
	}
	return m, nil
}
