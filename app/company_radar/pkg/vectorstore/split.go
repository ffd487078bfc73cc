package vectorstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	chunkSize    = 1000
	chunkOverlap = 100
)

// ChunkID 分片的内容地址：sha256(source + "_" + text)
func ChunkID(source, text string) string {
	sum := sha256.Sum256([]byte(source + "_" + text))
	return hex.EncodeToString(sum[:])
}

// Split 把文档切成带 id 的分片，同一批内重复的分片只保留一次
func Split(docs []*schema.Document) ([]Chunk, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(chunkSize),
		textsplitter.WithChunkOverlap(chunkOverlap),
	)

	seen := make(map[string]struct{})
	var chunks []Chunk
	for _, doc := range docs {
		if doc == nil || doc.Content == "" {
			continue
		}
		meta := stringify(doc.MetaData)
		source := meta[MetaSource]

		parts, err := splitter.SplitText(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("split document %s: %w", source, err)
		}
		for _, text := range parts {
			id := ChunkID(source, text)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			chunks = append(chunks, Chunk{ID: id, Text: text, Source: source, Metadata: meta})
		}
	}
	return chunks, nil
}

func stringify(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}
