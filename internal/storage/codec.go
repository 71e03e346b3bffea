package storage

import (
	"encoding/json"
	"fmt"

	"whaleScope/internal/model"
)

// EventKeys are the unique keys of history documents.
var EventKeys = []string{"chain_id", "hash"}

// EventDocument converts an event into its remote document form.
func EventDocument(e model.WhaleEvent) (Document, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.Hash, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal event %s: %w", e.Hash, err)
	}
	return doc, nil
}

// DecodeEvent converts a remote document back into an event.
func DecodeEvent(doc Document) (model.WhaleEvent, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return model.WhaleEvent{}, fmt.Errorf("marshal document: %w", err)
	}
	var e model.WhaleEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return model.WhaleEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Hash == "" || e.ChainID == "" {
		return model.WhaleEvent{}, fmt.Errorf("decode event: missing hash or chain_id")
	}
	return e, nil
}

func eventDocuments(events []model.WhaleEvent) ([]Document, error) {
	docs := make([]Document, 0, len(events))
	for _, e := range events {
		doc, err := EventDocument(e)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
