// Package seed applies declarative YAML datasets through a client: the
// development-fixture counterpart of a migration. Decoding is strict, so
// a typo in a dataset fails loudly instead of silently writing nothing.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/weftdb/weft"
)

// Dataset is one seed file: batches of rows per model, applied in
// declaration order so references point backward at rows that already
// exist.
type Dataset struct {
	// Name labels the dataset in logs and results.
	Name string `yaml:"name,omitempty"`

	// Models lists the batches in apply order.
	Models []Batch `yaml:"models"`
}

// Batch is every seed row for one model.
type Batch struct {
	// Model names the target model.
	Model string `yaml:"model"`

	// Rows holds the field values for each record to create.
	Rows []map[string]any `yaml:"rows"`
}

// Load parses a dataset from YAML source. Unknown keys are errors.
func Load(source []byte) (*Dataset, error) {
	dec := yaml.NewDecoder(bytes.NewReader(source))
	dec.KnownFields(true)
	var ds Dataset
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	for i, b := range ds.Models {
		if b.Model == "" {
			return nil, fmt.Errorf("parse dataset: batch %d has no model", i)
		}
	}
	return &ds, nil
}

// LoadFile reads path and parses it like Load.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return Load(data)
}

// Result reports what one Apply created.
type Result struct {
	// Created counts records per model name.
	Created map[string]int
	// Total is the overall record count.
	Total int
}

// Apply creates every row of the dataset through the client, inside one
// transaction when the store supports it: a dataset either lands whole or
// not at all. On stores without transactions the rows apply directly and
// a failure leaves the earlier rows in place.
func Apply(ctx context.Context, db *weft.Client, ds *Dataset) (*Result, error) {
	res := &Result{Created: make(map[string]int)}
	err := db.Transaction(ctx, func(tx *weft.Client) error {
		return applyAll(ctx, tx, ds, res)
	})
	if weft.IsUnsupported(err) {
		res = &Result{Created: make(map[string]int)}
		err = applyAll(ctx, db, ds, res)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func applyAll(ctx context.Context, db *weft.Client, ds *Dataset, res *Result) error {
	for _, batch := range ds.Models {
		for i, row := range batch.Rows {
			if _, err := db.Create(ctx, batch.Model, row); err != nil {
				return fmt.Errorf("seed %s row %d: %w", batch.Model, i, err)
			}
			res.Created[batch.Model]++
			res.Total++
		}
	}
	return nil
}
