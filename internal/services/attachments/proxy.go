package attachments

import (
	"context"
	"io"
	"strings"
	"time"

	"qonto-reconciliation-backend/internal/apperrors"
	"qonto-reconciliation-backend/internal/clients/qonto"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// Qonto signs attachment URLs for 30 minutes; keep ours shorter.
const DefaultURLTTL = 25 * time.Minute

type Provider interface {
	GetAttachment(ctx context.Context, id string) (*qonto.Attachment, error)
	DownloadURL(ctx context.Context, signedURL string) (io.ReadCloser, string, error)
}

type signedURL struct {
	url         string
	contentType string
	fileName    string
}

// File is an open attachment stream. The caller closes Body.
type File struct {
	Body        io.ReadCloser
	ContentType string
	FileName    string
}

type Proxy struct {
	provider Provider
	ttl      time.Duration
	log      zerolog.Logger
	urls     *cache.Cache // attachment id -> *signedURL
}

// NewProxy caches signed URLs for ttl; expired entries are swept every ttl
// whether or not they are looked up again.
func NewProxy(provider Provider, ttl time.Duration, log zerolog.Logger) *Proxy {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Proxy{
		provider: provider,
		ttl:      ttl,
		log:      log.With().Str("component", "attachments").Logger(),
		urls:     cache.New(ttl, ttl),
	}
}

// Open streams attachment bytes from Qonto. A cached signed URL that the
// storage rejects is refreshed once.
func (p *Proxy) Open(ctx context.Context, id string) (*File, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.Validation("attachment id is required")
	}

	entry, cached, err := p.signed(ctx, id)
	if err != nil {
		return nil, err
	}

	body, contentType, err := p.provider.DownloadURL(ctx, entry.url)
	if err != nil && cached && !apperrors.IsTransient(err) {
		p.log.Debug().Str("attachment_id", id).Err(err).Msg("cached signed url rejected, refreshing")
		p.urls.Delete(id)
		if entry, _, err = p.signed(ctx, id); err != nil {
			return nil, err
		}
		body, contentType, err = p.provider.DownloadURL(ctx, entry.url)
	}
	if err != nil {
		return nil, err
	}

	if contentType == "" {
		contentType = entry.contentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &File{Body: body, ContentType: contentType, FileName: entry.fileName}, nil
}

func (p *Proxy) signed(ctx context.Context, id string) (*signedURL, bool, error) {
	if val, ok := p.urls.Get(id); ok {
		return val.(*signedURL), true, nil
	}

	att, err := p.provider.GetAttachment(ctx, id)
	if err != nil {
		return nil, false, err
	}
	entry := &signedURL{
		url:         att.URL,
		contentType: att.FileContentType,
		fileName:    att.FileName,
	}
	p.urls.Set(id, entry, cache.DefaultExpiration)
	return entry, false, nil
}
