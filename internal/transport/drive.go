package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/julianstephens/habitloop/internal/constants"
)

const (
	driveAPIBase    = "https://www.googleapis.com/drive/v3"
	driveUploadBase = "https://www.googleapis.com/upload/drive/v3"
	appDataFolder   = "appDataFolder"
)

// TokenFunc supplies the current access token for each request.
type TokenFunc func() (string, error)

// DriveClient stores the bundle as a single file in the Drive
// application data folder. The newest file wins: Download lists files
// matching the bundle name ordered by modified time and fetches the
// first one.
type DriveClient struct {
	httpClient *http.Client
	token      TokenFunc
	apiBase    string
	uploadBase string
	fileName   string
}

type DriveOption func(*DriveClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) DriveOption {
	return func(d *DriveClient) { d.httpClient = c }
}

// WithBaseURLs points the client at a different API host, used in tests.
func WithBaseURLs(api, upload string) DriveOption {
	return func(d *DriveClient) {
		d.apiBase = api
		d.uploadBase = upload
	}
}

func NewDriveClient(token TokenFunc, opts ...DriveOption) *DriveClient {
	d := &DriveClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		apiBase:    driveAPIBase,
		uploadBase: driveUploadBase,
		fileName:   constants.RemoteFileName,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type driveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ModifiedTime string `json:"modifiedTime"`
}

type driveFileList struct {
	Files []driveFile `json:"files"`
}

func (d *DriveClient) Upload(ctx context.Context, data []byte) error {
	existing, err := d.latestFile(ctx)
	if err != nil {
		return err
	}

	if existing != nil {
		return d.updateFile(ctx, existing.ID, data)
	}
	return d.createFile(ctx, data)
}

func (d *DriveClient) Download(ctx context.Context) ([]byte, error) {
	file, err := d.latestFile(ctx)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, ErrNoRemoteBundle
	}

	endpoint := fmt.Sprintf("%s/files/%s?alt=media", d.apiBase, url.PathEscape(file.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus("download", resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// latestFile returns the newest remote bundle file, or nil when the
// folder holds none.
func (d *DriveClient) latestFile(ctx context.Context) (*driveFile, error) {
	query := url.Values{}
	query.Set("spaces", appDataFolder)
	query.Set("q", fmt.Sprintf("name = '%s' and trashed = false", d.fileName))
	query.Set("orderBy", "modifiedTime desc")
	query.Set("pageSize", "1")
	query.Set("fields", "files(id,name,modifiedTime)")

	endpoint := fmt.Sprintf("%s/files?%s", d.apiBase, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus("list", resp); err != nil {
		return nil, err
	}

	var list driveFileList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("unable to parse file list: %w", err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	return &list.Files[0], nil
}

func (d *DriveClient) createFile(ctx context.Context, data []byte) error {
	metadata := map[string]any{
		"name":    d.fileName,
		"parents": []string{appDataFolder},
	}
	body, contentType, err := multipartBody(metadata, data)
	if err != nil {
		return err
	}

	endpoint := d.uploadBase + "/files?uploadType=multipart"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus("upload", resp)
}

func (d *DriveClient) updateFile(ctx context.Context, fileID string, data []byte) error {
	endpoint := fmt.Sprintf("%s/files/%s?uploadType=media", d.uploadBase, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus("upload", resp)
}

func (d *DriveClient) do(req *http.Request) (*http.Response, error) {
	// No usable credential is the same failure class as a rejected
	// one: abort instead of retrying.
	token, err := d.token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return d.httpClient.Do(req)
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	return &StatusError{Op: op, Status: resp.StatusCode}
}

func multipartBody(metadata map[string]any, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := make(map[string][]string)
	metaHeader["Content-Type"] = []string{"application/json; charset=UTF-8"}
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return nil, "", err
	}

	dataHeader := make(map[string][]string)
	dataHeader["Content-Type"] = []string{"application/json"}
	dataPart, err := writer.CreatePart(dataHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := dataPart.Write(data); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, "multipart/related; boundary=" + writer.Boundary(), nil
}
