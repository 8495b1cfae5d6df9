package payload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// NewTree body of a tree insert
type NewTree struct {
	SpeciesID int     `json:"species"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	County    string  `json:"county,omitempty"`
}

// CreatedTree what the data service reports back about an inserted tree
type CreatedTree struct {
	ID         *int
	CategoryID *int
}

// createdDoc accepts both the bare document and the {"doc": ...} envelope.
type createdDoc struct {
	ID      *int            `json:"id"`
	Species json.RawMessage `json:"species"`
	Doc     *createdDoc     `json:"doc"`
}

// CreateTree inserts one tree. Inserts are not idempotent, so they are never
// retried.
func (c *Client) CreateTree(ctx context.Context, t NewTree) (CreatedTree, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return CreatedTree{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/trees", bytes.NewReader(body))
	if err != nil {
		return CreatedTree{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return CreatedTree{}, fmt.Errorf("create tree: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return CreatedTree{}, fmt.Errorf("payload create tree error: %d - %s", resp.StatusCode, text)
	}

	var doc createdDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return CreatedTree{}, fmt.Errorf("decode created tree: %w", err)
	}
	if doc.Doc != nil {
		doc = *doc.Doc
	}
	created := CreatedTree{ID: doc.ID}
	// best effort, a bare species id carries no category
	created.CategoryID = treeDoc{Species: doc.Species}.point().CategoryID
	c.log.Infof("tree %v created, species %d", ptrText(created.ID), t.SpeciesID)
	return created, nil
}

func ptrText(v *int) string {
	if v == nil {
		return "?"
	}
	return fmt.Sprint(*v)
}
