// Package blob defines the namespaced binary object store the sync
// pipeline reads and writes. The request path and the template worker are
// the only users, and both only ever append new objects or copy-read
// existing ones; nothing mutates a stored blob in place.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("blob: not found")

// Well-known namespaces. offline-uploads holds transient capture files
// exactly as the client sent them; documents and biometrics hold durable
// copies promoted out of the transient namespace.
const (
	NamespaceUploads    = "offline-uploads"
	NamespaceDocuments  = "documents"
	NamespaceBiometrics = "biometrics"
)

// Metadata is carried alongside every object and is sufficient to
// reconstruct provenance without a side table.
type Metadata struct {
	TenantID         string    `json:"tenantId"`
	UploaderID       string    `json:"uploaderId"`
	OriginalFilename string    `json:"originalFilename"`
	ContentType      string    `json:"contentType"`
	Size             int64     `json:"size"`
	Kind             string    `json:"kind"` // e.g. "offline-upload", "document", "biometric-photo"
	CreatedAt        time.Time `json:"createdAt"`
}

// Store is the narrow contract the pipeline needs. Any blob-capable
// backend (filesystem, object storage, a database blob table) can
// implement it.
type Store interface {
	// Put streams r into namespace and returns the new object's id. The
	// metadata Size field is filled in from the byte count actually
	// written.
	Put(ctx context.Context, namespace string, r io.Reader, meta Metadata) (string, error)

	// Open returns a streaming reader for an object plus its metadata.
	// The caller owns closing the reader.
	Open(ctx context.Context, namespace, id string) (io.ReadCloser, Metadata, error)

	// Stat returns an object's metadata without opening its content.
	Stat(ctx context.Context, namespace, id string) (Metadata, error)

	// Copy duplicates an object into another namespace server-side,
	// without the bytes round-tripping through the caller, and returns
	// the new object's id. meta overrides the stored metadata except for
	// Size, which is preserved from the source.
	Copy(ctx context.Context, srcNamespace, id, dstNamespace string, meta Metadata) (string, error)
}
