package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/models"
	"github.com/noah-isme/eduportal-api/internal/observability"
	"github.com/noah-isme/eduportal-api/internal/policy"
	"github.com/noah-isme/eduportal-api/internal/repository"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = newDomainError(ErrValidation, "file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = newDomainError(ErrValidation, "file type not allowed")
	// ErrUploadScanFailed indicates validation of the file content failed.
	ErrUploadScanFailed = newDomainError(ErrValidation, "file scanning failed")
	// ErrStorageUnavailable is returned when uploads arrive but no blob store is configured.
	ErrStorageUnavailable = newDomainError(ErrConflict, "file storage is not configured")
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// MaterialService manages course study materials.
type MaterialService interface {
	Create(ctx context.Context, principal policy.Principal, payload dto.MaterialCreateRequest, file *multipart.FileHeader) (dto.MaterialResponse, error)
	Get(ctx context.Context, principal policy.Principal, id uint) (dto.MaterialResponse, error)
	List(ctx context.Context, principal policy.Principal, req dto.MaterialListRequest) ([]dto.MaterialResponse, error)
	Update(ctx context.Context, principal policy.Principal, id uint, payload dto.MaterialUpdateRequest) (dto.MaterialResponse, error)
	Delete(ctx context.Context, principal policy.Principal, id uint) error
}

type materialService struct {
	materials   repository.MaterialRepository
	courses     repository.CourseRepository
	enrollments repository.EnrollmentRepository
	storage     FileStorage
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	maxSize     int64
	tracer      trace.Tracer
}

// NewMaterialService constructs the material service. storage may be nil, in which case only
// external links are accepted.
func NewMaterialService(
	materials repository.MaterialRepository,
	courses repository.CourseRepository,
	enrollments repository.EnrollmentRepository,
	storage FileStorage,
	maxSizeMB int,
	validate *validator.Validate,
	logger zerolog.Logger,
) MaterialService {
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	return &materialService{
		materials:   materials,
		courses:     courses,
		enrollments: enrollments,
		storage:     storage,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "material_service").Logger(),
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		tracer:      otel.Tracer("github.com/noah-isme/eduportal-api/internal/service/material"),
	}
}

func (s *materialService) Create(ctx context.Context, principal policy.Principal, payload dto.MaterialCreateRequest, file *multipart.FileHeader) (dto.MaterialResponse, error) {
	ctx, span := s.tracer.Start(ctx, "material.create")
	defer span.End()
	span.SetAttributes(attribute.Int64("course.id", int64(payload.CourseID)))

	if err := validate(s.validator, payload); err != nil {
		return dto.MaterialResponse{}, err
	}

	course, err := s.courses.GetByID(ctx, payload.CourseID)
	if err != nil {
		return dto.MaterialResponse{}, unexpected("load course", translateNotFound(err, ErrCourseNotFound))
	}
	if err := authorize(policy.CanManageCourse(principal, course)); err != nil {
		return dto.MaterialResponse{}, err
	}
	if payload.WeekNumber != nil && *payload.WeekNumber > course.DurationWeeks {
		return dto.MaterialResponse{}, validationError("week_number must be between 1 and %d", course.DurationWeeks)
	}

	externalURL := strings.TrimSpace(payload.ExternalURL)
	switch {
	case file == nil && externalURL == "":
		return dto.MaterialResponse{}, validationError("either a file or external_url is required")
	case payload.MaterialType == models.MaterialTypeLink && externalURL == "":
		return dto.MaterialResponse{}, validationError("link materials require external_url")
	}

	material := models.StudyMaterial{
		CourseID:     course.ID,
		Title:        strings.TrimSpace(payload.Title),
		Description:  s.sanitizer.Sanitize(payload.Description),
		MaterialType: payload.MaterialType,
		WeekNumber:   payload.WeekNumber,
		IsPublic:     payload.IsPublic,
		ExternalURL:  externalURL,
		UploadedBy:   principal.ID,
	}

	if file != nil {
		stored, err := s.store(ctx, span, file)
		if err != nil {
			return dto.MaterialResponse{}, err
		}
		material.FileURL = stored.url
		material.FileName = stored.name
		material.FileSize = stored.size
		material.MimeType = stored.mime
	}

	if err := s.materials.Create(ctx, &material); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.MaterialResponse{}, unexpected("create material", err)
	}

	s.logger.Info().Uint("material_id", material.ID).Uint("course_id", course.ID).Str("type", material.MaterialType).Msg("study material created")
	return dto.NewMaterialResponse(material), nil
}

type storedFile struct {
	url  string
	name string
	mime string
	size int64
}

func (s *materialService) store(ctx context.Context, span trace.Span, file *multipart.FileHeader) (storedFile, error) {
	if s.storage == nil {
		return storedFile{}, ErrStorageUnavailable
	}

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		observability.UploadRequests().WithLabelValues("too_large").Inc()
		return storedFile{}, ErrUploadTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return storedFile{}, unexpected("open upload", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return storedFile{}, unexpected("read upload", err)
	}
	if int64(buf.Len()) > s.maxSize {
		observability.UploadRequests().WithLabelValues("too_large").Inc()
		return storedFile{}, ErrUploadTooLarge
	}

	detected := mimetype.Detect(buf.Bytes())
	fileType := strings.ToLower(detected.String())
	if idx := strings.Index(fileType, ";"); idx >= 0 {
		fileType = strings.TrimSpace(fileType[:idx])
	}
	span.SetAttributes(attribute.String("upload.detected_mime", fileType))
	if !isAllowedMaterialType(detected) {
		observability.UploadRequests().WithLabelValues("type_rejected").Inc()
		span.SetStatus(codes.Error, "type not allowed")
		return storedFile{}, ErrUploadTypeNotAllowed
	}
	if err := s.scan(buf.Bytes(), detected); err != nil {
		observability.UploadRequests().WithLabelValues("scan_rejected").Inc()
		span.SetStatus(codes.Error, "scan failed")
		return storedFile{}, err
	}

	name := sanitizeFileName(file.Filename)
	url, err := s.storage.Upload(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.UploadRequests().WithLabelValues("storage_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return storedFile{}, unexpected("upload material", err)
	}

	observability.UploadRequests().WithLabelValues("stored").Inc()
	return storedFile{url: url, name: name, mime: fileType, size: int64(buf.Len())}, nil
}

func (s *materialService) scan(payload []byte, detected *mimetype.MIME) error {
	if !detected.Is("application/zip") && !isOfficeArchive(detected) {
		return nil
	}
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrUploadScanFailed
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(s.maxSize*20) {
			return ErrUploadScanFailed
		}
	}
	return nil
}

func (s *materialService) Get(ctx context.Context, principal policy.Principal, id uint) (dto.MaterialResponse, error) {
	material, err := s.materials.GetByID(ctx, id)
	if err != nil {
		return dto.MaterialResponse{}, unexpected("load material", translateNotFound(err, ErrMaterialNotFound))
	}
	course, err := s.courses.GetByID(ctx, material.CourseID)
	if err != nil {
		return dto.MaterialResponse{}, unexpected("load course", translateNotFound(err, ErrCourseNotFound))
	}

	enrolled := false
	if principal.IsStudent() && !material.IsPublic {
		enrolled, err = s.enrollments.IsActivelyEnrolled(ctx, principal.ID, course.ID)
		if err != nil {
			return dto.MaterialResponse{}, unexpected("check enrollment", err)
		}
	}
	if err := authorize(policy.CanViewMaterial(principal, material, course, enrolled)); err != nil {
		return dto.MaterialResponse{}, err
	}
	return dto.NewMaterialResponse(material), nil
}

// List returns public materials plus private ones of the courses the caller teaches or attends.
func (s *materialService) List(ctx context.Context, principal policy.Principal, req dto.MaterialListRequest) ([]dto.MaterialResponse, error) {
	filter := repository.MaterialFilter{
		CourseID:     req.CourseID,
		MaterialType: strings.TrimSpace(req.MaterialType),
		WeekNumber:   req.WeekNumber,
	}

	switch {
	case principal.IsAdmin():
	case principal.IsTeacher():
		owned, _, err := s.courses.List(ctx, repository.CourseFilter{TeacherID: principal.ID})
		if err != nil {
			return nil, unexpected("list courses", err)
		}
		filter.VisibleCourseIDs = courseIDs(owned)
	case principal.IsStudent():
		ids, err := s.enrollments.ActiveCourseIDs(ctx, principal.ID)
		if err != nil {
			return nil, unexpected("list enrollments", err)
		}
		if ids == nil {
			ids = []uint{}
		}
		filter.VisibleCourseIDs = ids
	default:
		filter.RestrictToPublic = true
	}

	materials, err := s.materials.List(ctx, filter)
	if err != nil {
		return nil, unexpected("list materials", err)
	}
	return dto.NewMaterialResponseSlice(materials), nil
}

// Update edits material metadata for the course teacher or an admin.
func (s *materialService) Update(ctx context.Context, principal policy.Principal, id uint, payload dto.MaterialUpdateRequest) (dto.MaterialResponse, error) {
	if err := validate(s.validator, payload); err != nil {
		return dto.MaterialResponse{}, err
	}
	material, err := s.materials.GetByID(ctx, id)
	if err != nil {
		return dto.MaterialResponse{}, unexpected("load material", translateNotFound(err, ErrMaterialNotFound))
	}
	course, err := s.courses.GetByID(ctx, material.CourseID)
	if err != nil {
		return dto.MaterialResponse{}, unexpected("load course", translateNotFound(err, ErrCourseNotFound))
	}
	if err := authorize(policy.CanManageCourse(principal, course)); err != nil {
		return dto.MaterialResponse{}, err
	}

	changes := make(map[string]interface{})
	if payload.Title != nil {
		changes["title"] = strings.TrimSpace(*payload.Title)
	}
	if payload.Description != nil {
		changes["description"] = s.sanitizer.Sanitize(*payload.Description)
	}
	if payload.MaterialType != nil {
		material.MaterialType = *payload.MaterialType
		changes["material_type"] = material.MaterialType
	}
	if payload.WeekNumber != nil {
		if *payload.WeekNumber > course.DurationWeeks {
			return dto.MaterialResponse{}, validationError("week_number must be between 1 and %d", course.DurationWeeks)
		}
		changes["week_number"] = *payload.WeekNumber
	}
	if payload.IsPublic != nil {
		changes["is_public"] = *payload.IsPublic
	}
	if payload.ExternalURL != nil {
		material.ExternalURL = strings.TrimSpace(*payload.ExternalURL)
		changes["external_url"] = material.ExternalURL
	}
	if material.MaterialType == models.MaterialTypeLink && material.ExternalURL == "" {
		return dto.MaterialResponse{}, validationError("link materials require external_url")
	}
	if material.FileURL == "" && material.ExternalURL == "" {
		return dto.MaterialResponse{}, validationError("either a file or external_url is required")
	}

	updated, err := s.materials.Update(ctx, material.ID, changes)
	if err != nil {
		return dto.MaterialResponse{}, unexpected("update material", translateNotFound(err, ErrMaterialNotFound))
	}
	return dto.NewMaterialResponse(updated), nil
}

func (s *materialService) Delete(ctx context.Context, principal policy.Principal, id uint) error {
	material, err := s.materials.GetByID(ctx, id)
	if err != nil {
		return unexpected("load material", translateNotFound(err, ErrMaterialNotFound))
	}
	course, err := s.courses.GetByID(ctx, material.CourseID)
	if err != nil {
		return unexpected("load course", translateNotFound(err, ErrCourseNotFound))
	}
	if err := authorize(policy.CanManageCourse(principal, course)); err != nil {
		return err
	}
	if err := s.materials.Delete(ctx, id); err != nil {
		if errors.Is(translateNotFound(err, ErrMaterialNotFound), ErrMaterialNotFound) {
			return ErrMaterialNotFound
		}
		return unexpected("delete material", err)
	}
	s.logger.Info().Uint("material_id", id).Uint("actor_id", principal.ID).Msg("study material deleted")
	return nil
}

var allowedMaterialMimes = []string{
	"application/pdf",
	"application/zip",
	"text/plain",
	"text/markdown",
	"application/msword",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func isAllowedMaterialType(detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		value := m.String()
		if strings.HasPrefix(value, "image/") || strings.HasPrefix(value, "video/") || strings.HasPrefix(value, "audio/") {
			return true
		}
	}
	for _, allowed := range allowedMaterialMimes {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

func isOfficeArchive(detected *mimetype.MIME) bool {
	return strings.HasPrefix(detected.String(), "application/vnd.openxmlformats-officedocument")
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("material-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}
