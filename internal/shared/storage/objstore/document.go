package objstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"summary-engine/internal/shared/model"
	"summary-engine/internal/shared/storage"
)

// DocumentStore 从 MinIO 读取文本提取结果
type DocumentStore struct {
	client *Client
	prefix string
}

var (
	_ storage.DocumentStore  = (*DocumentStore)(nil)
	_ storage.DocumentWriter = (*DocumentStore)(nil)
)

// NewDocumentStore 创建文档存储，prefix 为空时使用 documents/
func NewDocumentStore(client *Client, prefix string) *DocumentStore {
	if prefix == "" {
		prefix = "documents/"
	}
	return &DocumentStore{client: client, prefix: prefix}
}

// ObjectKey 文档对象路径
func ObjectKey(prefix, key string) string {
	clean := strings.Trim(path.Clean("/"+key), "/")
	return strings.TrimSuffix(prefix, "/") + "/" + clean + ".json"
}

// GetDocument 读取文档，对象不存在时返回 storage.ErrNotFound
func (s *DocumentStore) GetDocument(ctx context.Context, key string) (*model.Document, error) {
	data, err := s.client.Download(ctx, ObjectKey(s.prefix, key))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("document %s: %w", key, storage.ErrNotFound)
		}
		return nil, err
	}
	return decodeDocument(key, data)
}

// PutDocument 写入文档
func (s *DocumentStore) PutDocument(ctx context.Context, doc *model.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return s.client.Upload(ctx, ObjectKey(s.prefix, doc.Key), data, "application/json")
}

// decodeDocument 解析对象内容，缺省 Key 时以对象名补齐
func decodeDocument(key string, data []byte) (*model.Document, error) {
	doc := &model.Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", key, err)
	}
	if doc.Key == "" {
		doc.Key = key
	}
	return doc, nil
}
