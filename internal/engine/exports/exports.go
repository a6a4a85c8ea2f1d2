// Package exports hands out short-lived, single-use download tokens and
// streams a form's submissions as CSV.
package exports

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"formsmith/internal/engine/permissions"
	apperrors "formsmith/internal/pkg/errors"
	"formsmith/internal/platform/config"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

const defaultTokenTTL = 5 * time.Minute

type Service struct {
	db       *sql.DB
	resolver *permissions.Resolver
	cfg      config.ExportsConfig
	now      func() time.Time
}

func NewService(db *sql.DB, resolver *permissions.Resolver, cfg config.ExportsConfig) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &Service{db: db, resolver: resolver, cfg: cfg, now: time.Now}
}

// Token is returned once to the caller; only its hash is stored.
type Token struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	URL       string `json:"url"`
}

// Download is a redeemed token: the form and its fields in column order.
type Download struct {
	Form   *models.Form
	Fields []*models.Field
}

// Filename is a filesystem-safe name for the CSV attachment.
func (d *Download) Filename() string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, d.Form.Title)
	if name == "" {
		name = "form"
	}
	return name + "-submissions.csv"
}

func hashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IssueToken creates a download token for formID valid for the configured
// TTL.
func (s *Service) IssueToken(ctx context.Context, formID, businessID string) (*Token, error) {
	scope, form, err := s.resolver.AuthorizeForm(ctx, repositories.NewFormRepository(s.db), formID, businessID)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate export token: %w", err)
	}
	token := hex.EncodeToString(raw)
	expires := s.now().Add(s.cfg.TokenTTL).UnixMilli()

	err = repositories.NewExportTokenRepository(s.db).Create(ctx, &models.ExportToken{
		TokenHash:  hashToken(token),
		FormID:     form.ID,
		BusinessID: scope.BusinessID,
		CreatedBy:  scope.UserID(),
		ExpiresAt:  expires,
	})
	if err != nil {
		return nil, fmt.Errorf("store export token: %w", err)
	}

	return &Token{
		Token:     token,
		ExpiresAt: expires,
		URL:       strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/export-csv?token=" + url.QueryEscape(token),
	}, nil
}

// Redeem consumes token. Unknown, used and expired tokens all yield
// ErrUnauthorized.
func (s *Service) Redeem(ctx context.Context, token string) (*Download, error) {
	if token == "" {
		return nil, apperrors.ErrUnauthorized
	}
	t, err := repositories.NewExportTokenRepository(s.db).Consume(ctx, hashToken(token))
	if err != nil {
		return nil, fmt.Errorf("consume export token: %w", err)
	}
	if t == nil || t.ExpiresAt <= s.now().UnixMilli() {
		return nil, apperrors.ErrUnauthorized
	}

	form, err := repositories.NewFormRepository(s.db).GetByID(ctx, t.FormID)
	if err != nil {
		return nil, fmt.Errorf("load form: %w", err)
	}
	if form == nil || form.BusinessID != t.BusinessID {
		return nil, apperrors.ErrNotFound
	}
	fields, err := repositories.NewFieldRepository(s.db).ListByForm(ctx, form.ID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	return &Download{Form: form, Fields: fields}, nil
}

// WriteCSV streams every submission of the download's form, oldest first.
// The header is "Submission ID", "Submitted At" and then field titles in
// field order.
func (s *Service) WriteCSV(ctx context.Context, d *Download, w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(d.Fields)+2)
	header = append(header, "Submission ID", "Submitted At")
	for _, f := range d.Fields {
		header = append(header, f.Title)
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	rows := 0
	err := repositories.NewSubmissionRepository(s.db).Each(ctx, d.Form.ID, func(sub *models.Submission) error {
		record := make([]string, 0, len(header))
		record = append(record, sub.ID, time.UnixMilli(sub.SubmittedAt).UTC().Format(time.RFC3339))
		for _, f := range d.Fields {
			record = append(record, sub.Data[f.ID].String())
		}
		rows++
		return cw.Write(record)
	})
	if err != nil {
		return fmt.Errorf("export submissions: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	log.Info().Str("form_id", d.Form.ID).Int("rows", rows).Msg("submissions exported")
	return nil
}

// Sweep deletes expired tokens.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := repositories.NewExportTokenRepository(s.db).DeleteExpired(ctx, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep export tokens: %w", err)
	}
	if n > 0 {
		log.Info().Int64("removed", n).Msg("expired export tokens removed")
	}
	return n, nil
}
