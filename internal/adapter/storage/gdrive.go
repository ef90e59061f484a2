package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sndnv/stasis-sub000/internal/config"
)

type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

func NewGDrive(cfg *config.StoreConfig) (*GDriveStorage, error) {
	ctx := context.Background()

	service, err := drive.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func (g *GDriveStorage) Upload(ctx context.Context, name string, content io.Reader, _ int64) error {
	fileMetadata := &drive.File{
		Name:    name,
		Parents: []string{g.folderID},
	}

	_, err := g.service.Files.Create(fileMetadata).
		Media(content).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	return nil
}

func (g *GDriveStorage) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	id, err := g.find(ctx, name)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNotFound
	}

	response, err := g.service.Files.Get(id).Context(ctx).Download()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to download from gdrive: %w", err)
	}

	return response.Body, nil
}

func (g *GDriveStorage) List(ctx context.Context) ([]string, error) {
	return g.names(ctx, fmt.Sprintf("'%s' in parents and trashed=false", g.folderID))
}

func (g *GDriveStorage) Delete(ctx context.Context, name string) error {
	id, err := g.find(ctx, name)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("file not found: %s", name)
	}

	if err := g.service.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

func (g *GDriveStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false and createdTime < '%s'",
		g.folderID,
		cutoffTime.Format(time.RFC3339))

	return g.names(ctx, query)
}

func (g *GDriveStorage) find(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf("'%s' in parents and name='%s' and trashed=false", g.folderID, name)

	fileList, err := g.service.Files.List().
		Q(query).
		Fields("files(id)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to find file: %w", err)
	}

	if len(fileList.Files) == 0 {
		return "", nil
	}

	return fileList.Files[0].Id, nil
}

func (g *GDriveStorage) names(ctx context.Context, query string) ([]string, error) {
	var files []string

	err := g.service.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name)").
		Context(ctx).
		Pages(ctx, func(page *drive.FileList) error {
			for _, file := range page.Files {
				files = append(files, file.Name)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}
