// Package repository Document 相关的存储操作
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"summary-engine/internal/shared/model"
)

// GetDocument 获取已提取文本的文档
func (s *Store) GetDocument(ctx context.Context, key string) (*model.Document, error) {
	query := s.rebind(`SELECT key, name, owner_id, text, pages FROM documents WHERE key = $1`)
	doc := &model.Document{}
	var pages NullableJSON
	err := s.db.QueryRowContext(ctx, query, key).Scan(&doc.Key, &doc.Name, &doc.OwnerID, &doc.Text, &pages.Data)
	if err != nil {
		return nil, notFound(err)
	}
	if raw := pages.Value(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc.Pages); err != nil {
			return nil, fmt.Errorf("decode pages of document %s: %w", key, err)
		}
	}
	return doc, nil
}

// PutDocument 写入或覆盖文档
func (s *Store) PutDocument(ctx context.Context, doc *model.Document) error {
	var pages interface{}
	if len(doc.Pages) > 0 {
		data, err := json.Marshal(doc.Pages)
		if err != nil {
			return err
		}
		pages = string(data)
	}
	now := s.now()
	query := s.rebind(`
		INSERT INTO documents (key, name, owner_id, text, pages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	` + s.dialect.UpsertConflict("key", []string{
		"name = EXCLUDED.name",
		"owner_id = EXCLUDED.owner_id",
		"text = EXCLUDED.text",
		"pages = EXCLUDED.pages",
		"updated_at = EXCLUDED.updated_at",
	}))
	_, err := s.db.ExecContext(ctx, query, doc.Key, doc.Name, doc.OwnerID, doc.Text, pages, now, now)
	return err
}
