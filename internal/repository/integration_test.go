//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/internal/repository"
	"github.com/noah-isme/capital-declarations-api/internal/service"
	"github.com/noah-isme/capital-declarations-api/migrations"
	"github.com/noah-isme/capital-declarations-api/pkg/config"
	"github.com/noah-isme/capital-declarations-api/pkg/database"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
	"github.com/noah-isme/capital-declarations-api/pkg/storage"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "declarations",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	db, err := database.NewPostgres(config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		Name:     "declarations",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.Migrate(ctx, db, migrations.FS)
	require.NoError(t, err)
	return db
}

type lifecycle struct {
	firmID       string
	clientID     string
	declarations *service.DeclarationService
	portal       *service.PortalService
	timeline     *service.TimelineService
	status       *service.StatusService
	history      *repository.StatusHistoryRepository
}

func newLifecycle(t *testing.T, db *sqlx.DB) *lifecycle {
	t.Helper()
	firmID, clientID := uuid.NewString(), uuid.NewString()
	db.MustExec(`INSERT INTO firms (id, name) VALUES ($1, $2)`, firmID, "Cohen & Co")
	db.MustExec(`INSERT INTO clients (id, firm_id, full_name, email) VALUES ($1, $2, $3, $4)`, clientID, firmID, "Dana Levi", "dana@example.com")

	files, err := storage.NewLocalStorage(t.TempDir(), "/files")
	require.NoError(t, err)

	history := repository.NewStatusHistoryRepository(db)
	decls := repository.NewDeclarationRepository(db, history)
	comms := repository.NewCommunicationRepository(db)
	docs := repository.NewDocumentRepository(db)
	firms := service.NewBrandingService(repository.NewFirmRepository(db), nil, 0)

	status := service.NewStatusService(decls, nil, nil)
	tokens := service.NewTokenService(decls, 0, "https://portal.example.com", nil)
	return &lifecycle{
		firmID:       firmID,
		clientID:     clientID,
		declarations: service.NewDeclarationService(decls, firms, tokens, status, nil, service.NewValidator(), nil),
		portal: service.NewPortalService(service.PortalServiceDeps{
			Declarations: decls,
			Tokens:       tokens,
			Status:       status,
			Firms:        firms,
			Documents:    docs,
			Files:        files,
			Uploads:      service.PortalUploadConfig{AllowedMIMEs: []string{"application/pdf"}},
		}),
		timeline: service.NewTimelineService(decls, history, comms),
		status:   status,
		history:  history,
	}
}

func TestDeclarationLifecycleAgainstPostgres(t *testing.T) {
	db := startPostgres(t)
	lc := newLifecycle(t, db)
	ctx := context.Background()
	staff := models.StaffActor(uuid.NewString())

	decl, err := lc.declarations.Create(ctx, lc.firmID, staff, dto.CreateDeclarationRequest{ClientID: lc.clientID, TaxYear: 2024})
	require.NoError(t, err)

	sent, err := lc.declarations.SendToClient(ctx, lc.firmID, decl.ID, staff, dto.SendToClientRequest{Channel: "none"})
	require.NoError(t, err)
	assert.Equal(t, models.DeclarationStatusSent, sent.Declaration.Status)
	token := sent.Link.Token

	view, err := lc.portal.GetView(ctx, token)
	require.NoError(t, err)
	assert.True(t, view.IsFirstAccess)
	assert.Equal(t, models.DeclarationStatusInProgress, view.Declaration.Status)

	again, err := lc.portal.GetView(ctx, token)
	require.NoError(t, err)
	assert.False(t, again.IsFirstAccess)

	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")
	doc, err := lc.portal.UploadDocument(ctx, decl.ID, token, dto.PortalUpload{FileType: "tabu", FileName: "tabu.pdf", Data: pdf})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentCategoryRealEstate, doc.Category)

	require.NoError(t, lc.portal.MarkDocumentsComplete(ctx, decl.ID, token))
	require.NoError(t, lc.portal.MarkDocumentsComplete(ctx, decl.ID, token))

	timeline, err := lc.timeline.Assemble(ctx, lc.firmID, decl.ID, 0)
	require.NoError(t, err)
	require.Len(t, timeline.Entries, 5)
	assert.Equal(t, models.TimelineEntryStatusChange, timeline.Entries[0].Type)
	require.NotNil(t, timeline.Entries[0].StatusChange)
	assert.Equal(t, models.DeclarationStatusDocumentsReceived, timeline.Entries[0].StatusChange.ToStatus)
}

func TestConcurrentTransitionsAuditOnce(t *testing.T) {
	db := startPostgres(t)
	lc := newLifecycle(t, db)
	ctx := context.Background()
	staff := models.StaffActor(uuid.NewString())

	decl, err := lc.declarations.Create(ctx, lc.firmID, staff, dto.CreateDeclarationRequest{ClientID: lc.clientID, TaxYear: 2024})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = lc.status.Transition(ctx, lc.firmID, decl.ID, models.DeclarationStatusReviewing, fmt.Sprintf("worker %d", i), staff)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		appErr := appErrors.FromError(err)
		assert.Contains(t, []string{appErrors.ErrNoOpTransition.Code, appErrors.ErrConcurrentModification.Code}, appErr.Code)
	}
	assert.Equal(t, 1, succeeded)

	entries, err := lc.history.ListByDeclaration(ctx, lc.firmID, decl.ID, 0)
	require.NoError(t, err)
	reviewing := 0
	for _, entry := range entries {
		if entry.ToStatus == models.DeclarationStatusReviewing {
			reviewing++
		}
	}
	assert.Equal(t, 1, reviewing)
}
