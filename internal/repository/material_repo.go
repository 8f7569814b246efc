package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// MaterialFilter narrows material listings. VisibleCourseIDs, when non-nil, limits private
// materials to those courses while public ones stay visible everywhere.
type MaterialFilter struct {
	CourseID         uint
	MaterialType     string
	WeekNumber       int
	VisibleCourseIDs []uint
	RestrictToPublic bool
}

// MaterialRepository persists study materials.
type MaterialRepository interface {
	Create(ctx context.Context, material *models.StudyMaterial) error
	GetByID(ctx context.Context, id uint) (models.StudyMaterial, error)
	List(ctx context.Context, filter MaterialFilter) ([]models.StudyMaterial, error)
	Update(ctx context.Context, id uint, changes map[string]interface{}) (models.StudyMaterial, error)
	Delete(ctx context.Context, id uint) error
}

type materialRepository struct {
	db *gorm.DB
}

// NewMaterialRepository instantiates a GORM-backed repository.
func NewMaterialRepository(db *gorm.DB) MaterialRepository {
	return &materialRepository{db: db}
}

func (r *materialRepository) Create(ctx context.Context, material *models.StudyMaterial) error {
	return r.db.WithContext(ctx).Create(material).Error
}

func (r *materialRepository) Update(ctx context.Context, id uint, changes map[string]interface{}) (models.StudyMaterial, error) {
	var material models.StudyMaterial
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(changes) > 0 {
			result := tx.Model(&models.StudyMaterial{}).Where("id = ?", id).Updates(changes)
			if result.Error != nil {
				return result.Error
			}
		}
		return tx.First(&material, id).Error
	})
	if err != nil {
		return models.StudyMaterial{}, err
	}
	return material, nil
}

func (r *materialRepository) GetByID(ctx context.Context, id uint) (models.StudyMaterial, error) {
	var material models.StudyMaterial
	if err := r.db.WithContext(ctx).First(&material, id).Error; err != nil {
		return models.StudyMaterial{}, err
	}
	return material, nil
}

func (r *materialRepository) List(ctx context.Context, filter MaterialFilter) ([]models.StudyMaterial, error) {
	query := r.db.WithContext(ctx).Model(&models.StudyMaterial{})

	if filter.CourseID != 0 {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if filter.MaterialType != "" {
		query = query.Where("material_type = ?", filter.MaterialType)
	}
	if filter.WeekNumber > 0 {
		query = query.Where("week_number = ?", filter.WeekNumber)
	}

	switch {
	case filter.RestrictToPublic:
		query = query.Where("is_public = ?", true)
	case filter.VisibleCourseIDs != nil:
		if len(filter.VisibleCourseIDs) == 0 {
			query = query.Where("is_public = ?", true)
		} else {
			query = query.Where("is_public = ? OR course_id IN ?", true, filter.VisibleCourseIDs)
		}
	}

	var materials []models.StudyMaterial
	if err := query.Order("week_number ASC").Order("created_at DESC").Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

func (r *materialRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.StudyMaterial{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
