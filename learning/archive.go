package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ResultRecord 闭环结果的归档行
type ResultRecord struct {
	ID               uint      `gorm:"primaryKey"`
	TaskID           string    `gorm:"size:255;index"`
	Topology         string    `gorm:"size:64;index"`
	Converged        bool      `gorm:""`
	ConvergenceIter  int       `gorm:""`
	FinalDelta       float64   `gorm:""`
	LearningRate     float64   `gorm:""`
	TotalTokens      int       `gorm:""`
	TotalCostUSD     float64   `gorm:""`
	QualityPerDollar float64   `gorm:""`
	WallTimeSeconds  float64   `gorm:""`
	Iterations       string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:""`
}

// TableName 指定归档表名
func (ResultRecord) TableName() string {
	return "learning_results"
}

// Archive 闭环结果归档，SQLite 或任意 GORM 后端
type Archive struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewArchive 创建归档并确保表结构
func NewArchive(db *gorm.DB, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&ResultRecord{}); err != nil {
		return nil, fmt.Errorf("migrating learning_results: %w", err)
	}
	return &Archive{
		db:     db,
		logger: logger.With(zap.String("component", "result_archive")),
	}, nil
}

// Save 归档一条闭环结果，迭代明细以 JSON 存储
func (a *Archive) Save(ctx context.Context, result *Result) error {
	iterations, err := json.Marshal(result.Iterations)
	if err != nil {
		return fmt.Errorf("encoding iterations: %w", err)
	}

	record := &ResultRecord{
		TaskID:           result.TaskID,
		Topology:         result.Topology,
		Converged:        result.Converged,
		ConvergenceIter:  result.ConvergenceIter,
		FinalDelta:       result.FinalDelta,
		LearningRate:     result.LearningRate,
		TotalTokens:      result.TotalUsage.TotalTokens,
		TotalCostUSD:     result.TotalUsage.Cost,
		QualityPerDollar: result.QualityPerDollar,
		WallTimeSeconds:  result.WallTimeSeconds,
		Iterations:       string(iterations),
	}
	if err := a.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("saving result for %s/%s: %w", result.TaskID, result.Topology, err)
	}

	a.logger.Info("result archived",
		zap.String("task_id", result.TaskID),
		zap.String("topology", result.Topology),
		zap.Uint("record_id", record.ID))
	return nil
}

// List 按任务列出归档结果，新的在前
func (a *Archive) List(ctx context.Context, taskID string) ([]ResultRecord, error) {
	var records []ResultRecord
	query := a.db.WithContext(ctx).Order("created_at desc, id desc")
	if taskID != "" {
		query = query.Where("task_id = ?", taskID)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	return records, nil
}

// Decode 还原归档行里的迭代明细
func (r *ResultRecord) Decode() ([]IterationRecord, error) {
	var iterations []IterationRecord
	if err := json.Unmarshal([]byte(r.Iterations), &iterations); err != nil {
		return nil, fmt.Errorf("decoding iterations: %w", err)
	}
	return iterations, nil
}
