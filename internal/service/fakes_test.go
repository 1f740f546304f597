package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/internal/repository"
	"github.com/noah-isme/capital-declarations-api/pkg/storage"
)

// memoryDeclarations mimics the SQL semantics of the declaration and history repositories.
type memoryDeclarations struct {
	mu      sync.Mutex
	decls   map[string]*models.Declaration
	history []models.StatusHistoryEntry
	seq     int64

	conflicts  int
	collisions int
	auditErr   error
	applyCalls int
}

func newMemoryDeclarations(decls ...*models.Declaration) *memoryDeclarations {
	m := &memoryDeclarations{decls: make(map[string]*models.Declaration)}
	for _, d := range decls {
		m.decls[d.ID] = d
	}
	return m
}

func (m *memoryDeclarations) nextSeq() int64 {
	m.seq++
	return m.seq
}

func (m *memoryDeclarations) get(id string) *models.Declaration {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *m.decls[id]
	return &d
}

func (m *memoryDeclarations) historyFor(id string) []models.StatusHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StatusHistoryEntry
	for _, h := range m.history {
		if h.DeclarationID == id {
			out = append(out, h)
		}
	}
	return out
}

func (m *memoryDeclarations) Create(ctx context.Context, decl *models.Declaration, actor models.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if decl.ID == "" {
		decl.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	decl.Status = models.DeclarationStatusDraft
	decl.CreatedAt, decl.UpdatedAt = now, now
	stored := *decl
	m.decls[decl.ID] = &stored
	note := "declaration created"
	m.history = append(m.history, models.StatusHistoryEntry{
		ID: uuid.NewString(), FirmID: decl.FirmID, DeclarationID: decl.ID, ToStatus: decl.Status,
		Notes: &note, ChangedBy: actor.Ref(), ChangedAt: now, Seq: m.nextSeq(),
	})
	return nil
}

func (m *memoryDeclarations) GetByID(ctx context.Context, firmID, id string) (*models.Declaration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decls[id]
	if !ok || d.FirmID != firmID {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *memoryDeclarations) FindForPortal(ctx context.Context, id string) (*models.Declaration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decls[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *memoryDeclarations) GetByToken(ctx context.Context, token string) (*models.Declaration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.decls {
		if d.PublicToken != nil && *d.PublicToken == token {
			cp := *d
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryDeclarations) List(ctx context.Context, filter models.DeclarationFilter) ([]models.Declaration, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Declaration
	for _, d := range m.decls {
		if d.FirmID == filter.FirmID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryDeclarations) ApplyTransition(ctx context.Context, params repository.TransitionParams) (*models.StatusHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.conflicts > 0 {
		m.conflicts--
		return nil, repository.ErrStatusConflict
	}
	d, ok := m.decls[params.DeclarationID]
	if !ok || d.FirmID != params.FirmID || d.Status != params.From {
		return nil, repository.ErrStatusConflict
	}
	if m.auditErr != nil {
		return nil, m.auditErr
	}
	from := params.From
	entry := models.StatusHistoryEntry{
		ID: uuid.NewString(), FirmID: params.FirmID, DeclarationID: params.DeclarationID,
		FromStatus: &from, ToStatus: params.To, Notes: params.Note, ChangedBy: params.Actor.Ref(),
		ChangedAt: params.At, Seq: m.nextSeq(),
	}
	d.Status = params.To
	d.UpdatedAt = params.At
	m.history = append(m.history, entry)
	return &entry, nil
}

func (m *memoryDeclarations) IssueToken(ctx context.Context, firmID, id, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collisions > 0 {
		m.collisions--
		return repository.ErrTokenCollision
	}
	d, ok := m.decls[id]
	if !ok || d.FirmID != firmID {
		return sql.ErrNoRows
	}
	d.PublicToken = &token
	d.PublicTokenExpiresAt = &expiresAt
	d.PublicTokenRenewedAt = nil
	d.PortalAccessedAt = nil
	d.PortalAccessCount = 0
	return nil
}

func (m *memoryDeclarations) RenewToken(ctx context.Context, id, token string, target, now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decls[id]
	if !ok || d.PublicToken == nil || *d.PublicToken != token {
		return time.Time{}, sql.ErrNoRows
	}
	if d.PublicTokenExpiresAt != nil && d.PublicTokenExpiresAt.Before(now) {
		return time.Time{}, sql.ErrNoRows
	}
	next := target
	if d.PublicTokenExpiresAt != nil && d.PublicTokenExpiresAt.After(target) {
		next = *d.PublicTokenExpiresAt
	}
	d.PublicTokenExpiresAt = &next
	d.PublicTokenRenewedAt = &now
	return next, nil
}

func (m *memoryDeclarations) RevokeToken(ctx context.Context, firmID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decls[id]
	if !ok || d.FirmID != firmID {
		return sql.ErrNoRows
	}
	d.PublicToken = nil
	d.PublicTokenExpiresAt = nil
	return nil
}

func (m *memoryDeclarations) RecordPortalAccess(ctx context.Context, id, token string, now time.Time) (models.PortalAccess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decls[id]
	if !ok || d.PublicToken == nil || *d.PublicToken != token {
		return models.PortalAccess{}, sql.ErrNoRows
	}
	d.PortalAccessCount++
	if d.PortalAccessedAt == nil {
		d.PortalAccessedAt = &now
	}
	return models.PortalAccess{AccessedAt: *d.PortalAccessedAt, AccessCount: d.PortalAccessCount}, nil
}

func (m *memoryDeclarations) UpdateAssignment(ctx context.Context, firmID, id string, assignedTo *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decls[id]
	if !ok || d.FirmID != firmID {
		return sql.ErrNoRows
	}
	d.AssignedTo = assignedTo
	return nil
}

func (m *memoryDeclarations) UpdateDeadlines(ctx context.Context, firmID, id string, deadlines models.DeclarationDeadlines) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decls[id]
	if !ok || d.FirmID != firmID {
		return sql.ErrNoRows
	}
	d.TaxAuthorityDueDate = deadlines.TaxAuthorityDueDate
	d.InternalDueDate = deadlines.InternalDueDate
	return nil
}

func (m *memoryDeclarations) UpdatePenalty(ctx context.Context, firmID, id string, penalty models.DeclarationPenalty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decls[id]
	if !ok || d.FirmID != firmID {
		return sql.ErrNoRows
	}
	d.WasSubmittedLate = penalty.WasSubmittedLate
	d.PenaltyAmount = penalty.Amount
	d.PenaltyStatus = penalty.Status
	d.PenaltyReceivedDate = penalty.ReceivedDate
	d.PenaltyAppealDate = penalty.AppealDate
	d.PenaltyPaidDate = penalty.PaidDate
	return nil
}

type firmStub struct {
	branding *models.FirmBranding
	client   *models.Client
}

func (f *firmStub) GetBranding(ctx context.Context, firmID string) (*models.FirmBranding, error) {
	if f.branding == nil || f.branding.ID != firmID {
		return nil, sql.ErrNoRows
	}
	cp := *f.branding
	return &cp, nil
}

func (f *firmStub) GetClient(ctx context.Context, firmID, clientID string) (*models.Client, error) {
	if f.client == nil || f.client.ID != clientID || f.client.FirmID != firmID {
		return nil, sql.ErrNoRows
	}
	cp := *f.client
	return &cp, nil
}

type memoryDocuments struct {
	mu        sync.Mutex
	docs      []models.Document
	createErr error
}

func (m *memoryDocuments) Create(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.docs = append(m.docs, *doc)
	return nil
}

func (m *memoryDocuments) CountByType(ctx context.Context, declarationID string) ([]models.DocumentTypeCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, d := range m.docs {
		if d.DeclarationID == declarationID && d.Status != models.DocumentStatusRejected {
			counts[d.FileType]++
		}
	}
	out := make([]models.DocumentTypeCount, 0, len(counts))
	for ft, c := range counts {
		out = append(out, models.DocumentTypeCount{FileType: ft, Count: c})
	}
	return out, nil
}

func (m *memoryDocuments) GetByID(ctx context.Context, firmID, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.docs {
		if d.ID == id && d.FirmID == firmID {
			cp := d
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryDocuments) ListByDeclaration(ctx context.Context, firmID, declarationID string) ([]models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Document
	for _, d := range m.docs {
		if d.DeclarationID == declarationID && d.FirmID == firmID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memoryDocuments) UpdateReview(ctx context.Context, firmID, id string, status models.DocumentStatus, reviewerID string, note *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.docs {
		if m.docs[i].ID == id && m.docs[i].FirmID == firmID {
			now := time.Now().UTC()
			m.docs[i].Status = status
			m.docs[i].ReviewedBy = &reviewerID
			m.docs[i].ReviewedAt = &now
			m.docs[i].ReviewNote = note
			return nil
		}
	}
	return sql.ErrNoRows
}

type fileStoreStub struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	storeErr error
	deleted  []string
}

func newFileStoreStub() *fileStoreStub {
	return &fileStoreStub{blobs: make(map[string][]byte)}
}

func (f *fileStoreStub) Store(ctx context.Context, data []byte, fileName, folder string) (storage.StoredFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return storage.StoredFile{}, f.storeErr
	}
	key := folder + "/" + uuid.NewString() + "-" + fileName
	f.blobs[key] = data
	return storage.StoredFile{Key: key, URL: "/files/" + key, Size: int64(len(data))}, nil
}

func (f *fileStoreStub) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fileStoreStub) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, errors.New("missing blob")
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

func (f *fileStoreStub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
