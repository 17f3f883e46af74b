package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionEmailContents = "email_contents"

	// Only bodies larger than this are gzipped.
	compressionThreshold = 1024
)

// EmailContentAdapter implements out.EmailContentStore using MongoDB.
type EmailContentAdapter struct {
	collection *mongo.Collection
}

func NewEmailContentAdapter(db *mongo.Database) *EmailContentAdapter {
	return &EmailContentAdapter{collection: db.Collection(collectionEmailContents)}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *EmailContentAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "source_message_id", Value: 1}},
		},
	})
	return err
}

type emailContentDocument struct {
	EmailID             int64             `bson:"email_id"`
	AccountID           int64             `bson:"account_id"`
	SourceMessageID     string            `bson:"source_message_id"`
	HTML                []byte            `bson:"html"`
	Text                []byte            `bson:"text"`
	IsCompressed        bool              `bson:"is_compressed"`
	Headers             map[string]string `bson:"headers,omitempty"`
	ListUnsubscribe     string            `bson:"list_unsubscribe,omitempty"`
	ListUnsubscribePost string            `bson:"list_unsubscribe_post,omitempty"`
	OriginalSize        int64             `bson:"original_size"`
	StoredAt            time.Time         `bson:"stored_at"`
}

// SaveContent upserts the content by email id.
func (a *EmailContentAdapter) SaveContent(ctx context.Context, content *domain.EmailContent) error {
	doc, err := toDocument(content)
	if err != nil {
		return fmt.Errorf("failed to convert content to document: %w", err)
	}

	_, err = a.collection.ReplaceOne(ctx,
		bson.M{"email_id": content.EmailID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save email content: %w", err)
	}
	return nil
}

// GetContent returns nil, nil when nothing was stored for the email.
func (a *EmailContentAdapter) GetContent(ctx context.Context, emailID int64) (*domain.EmailContent, error) {
	var doc emailContentDocument
	err := a.collection.FindOne(ctx, bson.M{"email_id": emailID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email content: %w", err)
	}
	return fromDocument(&doc)
}

func toDocument(c *domain.EmailContent) (*emailContentDocument, error) {
	html, text := []byte(c.HTML), []byte(c.Text)
	size := int64(len(html) + len(text))

	compressed := size > compressionThreshold
	if compressed {
		var err error
		if html, err = compress(html); err != nil {
			return nil, fmt.Errorf("failed to compress HTML: %w", err)
		}
		if text, err = compress(text); err != nil {
			return nil, fmt.Errorf("failed to compress text: %w", err)
		}
	}

	storedAt := c.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	return &emailContentDocument{
		EmailID:             c.EmailID,
		AccountID:           c.AccountID,
		SourceMessageID:     c.SourceMessageID,
		HTML:                html,
		Text:                text,
		IsCompressed:        compressed,
		Headers:             c.Headers,
		ListUnsubscribe:     c.ListUnsubscribe,
		ListUnsubscribePost: c.ListUnsubscribePost,
		OriginalSize:        size,
		StoredAt:            storedAt,
	}, nil
}

func fromDocument(doc *emailContentDocument) (*domain.EmailContent, error) {
	html, text := doc.HTML, doc.Text
	if doc.IsCompressed {
		var err error
		if html, err = decompress(html); err != nil {
			return nil, fmt.Errorf("failed to decompress HTML: %w", err)
		}
		if text, err = decompress(text); err != nil {
			return nil, fmt.Errorf("failed to decompress text: %w", err)
		}
	}
	return &domain.EmailContent{
		EmailID:             doc.EmailID,
		AccountID:           doc.AccountID,
		SourceMessageID:     doc.SourceMessageID,
		HTML:                string(html),
		Text:                string(text),
		Headers:             doc.Headers,
		ListUnsubscribe:     doc.ListUnsubscribe,
		ListUnsubscribePost: doc.ListUnsubscribePost,
		StoredAt:            doc.StoredAt,
	}, nil
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

var _ out.EmailContentStore = (*EmailContentAdapter)(nil)
