package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/okian/sphere/internal/domain/model"
	"github.com/okian/sphere/internal/domain/types"
)

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

// readJSON decodes the file at path into v. "-" reads stdin.
func readJSON(path string, stdin io.Reader, v any) error {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func readProfile(path string, stdin io.Reader) (*model.InfluencerProfile, error) {
	var pv types.ProfileView
	if err := readJSON(path, stdin, &pv); err != nil {
		return nil, err
	}
	return pv.Profile(), nil
}

func readDraft(path string, stdin io.Reader) (*model.ContentDraft, error) {
	if path == "" {
		return nil, nil
	}
	var dr types.DraftRequest
	if err := readJSON(path, stdin, &dr); err != nil {
		return nil, err
	}
	d := dr.Draft()
	return &d, nil
}
