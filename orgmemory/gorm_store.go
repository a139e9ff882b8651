package orgmemory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LessonRecord 是嵌入式 SQLite 中的课程行
type LessonRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"index;size:255"`
	Category  string `gorm:"size:255"`
	Position  int
	Lesson    string `gorm:"type:text"`
	CreatedAt time.Time
}

// TableName 指定表名
func (LessonRecord) TableName() string {
	return "org_memory_lessons"
}

// GormStore 把记忆快照落到嵌入式数据库，作为导出/种子介质
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore 创建数据库存储并迁移表结构
func NewGormStore(db *gorm.DB, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&LessonRecord{}); err != nil {
		return nil, fmt.Errorf("migrate lesson table: %w", err)
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "memory_gorm_store")),
	}, nil
}

// Load 实现 Store.Load
func (s *GormStore) Load(ctx context.Context, key string) (map[string][]string, error) {
	var records []LessonRecord
	err := s.db.WithContext(ctx).
		Where("key = ?", key).
		Order("category, position").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("load lessons: %w", err)
	}

	snapshot := make(map[string][]string)
	for _, r := range records {
		snapshot[r.Category] = append(snapshot[r.Category], r.Lesson)
	}
	return snapshot, nil
}

// Save 实现 Store.Save
func (s *GormStore) Save(ctx context.Context, key string, snapshot map[string][]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("key = ?", key).Delete(&LessonRecord{}).Error; err != nil {
			return fmt.Errorf("clear previous snapshot: %w", err)
		}
		for category, lessons := range snapshot {
			for i, lesson := range lessons {
				rec := LessonRecord{
					Key:      key,
					Category: category,
					Position: i,
					Lesson:   lesson,
				}
				if err := tx.Create(&rec).Error; err != nil {
					return fmt.Errorf("insert lesson: %w", err)
				}
			}
		}
		return nil
	})
}
