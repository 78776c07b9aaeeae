package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/platform"
	"github.com/fmueller/voxscribe/internal/service"
	"github.com/fmueller/voxscribe/internal/version"
	"github.com/fmueller/voxscribe/internal/whisper"
)

const (
	serviceName    = "voxscribe"
	fileField      = "file"
	maxFieldLength = 4 << 10
)

var optionFields = map[string]bool{
	"model":           true,
	"language":        true,
	"device":          true,
	"word_timestamps": true,
	"verbose":         true,
}

type deviceInfo struct {
	platform.Capabilities
	OptimalDevice platform.Device `json:"optimal_device"`
}

func (s *Server) deviceInfo() deviceInfo {
	if s.devices == nil {
		return deviceInfo{OptimalDevice: platform.DeviceCPU}
	}
	return deviceInfo{Capabilities: s.devices.Capabilities(), OptimalDevice: s.devices.OptimalDevice()}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     serviceName,
		"status":      "running",
		"version":     version.Resolve(),
		"device_info": s.deviceInfo(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"version":           version.Resolve(),
		"device_info":       s.deviceInfo(),
		"supported_formats": audio.SupportedFormats(),
		"available_models":  whisper.ModelNames(),
		"default_model":     s.defaultModel(),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	loaded := []string{}
	if s.models != nil {
		for _, key := range s.models.Loaded() {
			loaded = append(loaded, key.String())
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"available_models": whisper.ModelNames(),
		"loaded_models":    loaded,
		"default_model":    s.defaultModel(),
		"device_info":      s.deviceInfo(),
	})
}

// handleTranscribe streams the "file" part of a multipart upload straight
// into the service without buffering it in memory or multipart temp files.
// Form fields sent before the file override query parameters.
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	}

	mr, err := r.MultipartReader()
	if err != nil {
		s.badRequest(w, r, "expected a multipart/form-data body with a \"file\" field")
		return
	}

	values := r.URL.Query()
	part, err := nextFilePart(mr, values)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.writeError(w, r, err)
			return
		}
		s.badRequest(w, r, err.Error())
		return
	}
	defer part.Close()

	opts, err := parseOptions(values, service.DefaultOptions())
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}

	result, err := s.transcriber.TranscribeUpload(r.Context(), part.FileName(), part, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func nextFilePart(mr *multipart.Reader, values url.Values) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing %q field in multipart body", fileField)
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart body: %w", err)
		}

		name := part.FormName()
		if name == fileField {
			if part.FileName() == "" {
				_ = part.Close()
				return nil, fmt.Errorf("%q field must be a file upload with a filename", fileField)
			}
			return part, nil
		}
		if optionFields[name] && part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldLength))
			if err != nil {
				_ = part.Close()
				return nil, fmt.Errorf("read form field %q: %w", name, err)
			}
			values.Set(name, strings.TrimSpace(string(value)))
		}
		_ = part.Close()
	}
}

type transcribeURLRequest struct {
	URL            string `json:"url"`
	Model          string `json:"model"`
	Language       string `json:"language"`
	Device         string `json:"device"`
	WordTimestamps *bool  `json:"word_timestamps"`
	Verbose        *bool  `json:"verbose"`
}

func (s *Server) handleTranscribeURL(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	opts, err := parseOptions(values, service.DefaultOptions())
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	rawURL := strings.TrimSpace(values.Get("url"))

	if isJSON(r.Header.Get("Content-Type")) {
		var body transcribeURLRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			s.badRequest(w, r, fmt.Sprintf("invalid JSON body: %v", err))
			return
		}
		body.apply(&opts)
		if u := strings.TrimSpace(body.URL); u != "" {
			rawURL = u
		}
	}

	if rawURL == "" {
		s.badRequest(w, r, "missing \"url\" parameter")
		return
	}

	result, err := s.transcriber.TranscribeURL(r.Context(), rawURL, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (b transcribeURLRequest) apply(opts *service.Options) {
	if b.Model != "" {
		opts.Model = b.Model
	}
	if b.Language != "" {
		opts.Language = b.Language
	}
	if b.Device != "" {
		opts.Device = b.Device
	}
	if b.WordTimestamps != nil {
		opts.WordTimestamps = *b.WordTimestamps
	}
	if b.Verbose != nil {
		opts.Verbose = *b.Verbose
	}
}

func parseOptions(values url.Values, opts service.Options) (service.Options, error) {
	if v := values.Get("model"); v != "" {
		opts.Model = v
	}
	if v := values.Get("language"); v != "" {
		opts.Language = v
	}
	if v := values.Get("device"); v != "" {
		opts.Device = v
	}

	var err error
	if opts.WordTimestamps, err = parseBool(values, "word_timestamps", opts.WordTimestamps); err != nil {
		return opts, err
	}
	if opts.Verbose, err = parseBool(values, "verbose", opts.Verbose); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseBool(values url.Values, key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s value %q: expected true or false", key, raw)
	}
	return v, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func (s *Server) defaultModel() string {
	if s.opts.DefaultModel != "" {
		return s.opts.DefaultModel
	}
	return whisper.DefaultModel
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
