package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mediasniff/pkg/model"
)

// SettingsRepo 设置仓库
type SettingsRepo struct {
	db *gorm.DB
}

// NewSettingsRepo 创建设置仓库
func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// Get 读取单个设置，不存在时返回空串
func (r *SettingsRepo) Get(key string) (string, error) {
	var s Setting
	err := r.db.First(&s, "`key` = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

// Set 写入单个设置
func (r *SettingsRepo) Set(key, value string) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&Setting{Key: key, Value: value}).Error
}

// GetAll 读取全部设置
func (r *SettingsRepo) GetAll() (map[string]string, error) {
	var rows []Setting
	if err := r.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, s := range rows {
		out[s.Key] = s.Value
	}
	return out, nil
}

// Aria2 读取外部下载代理配置
func (r *SettingsRepo) Aria2() (model.Aria2Settings, error) {
	u, err := r.Get(SettingKeyAria2URL)
	if err != nil {
		return model.Aria2Settings{}, err
	}
	tok, err := r.Get(SettingKeyAria2Token)
	if err != nil {
		return model.Aria2Settings{}, err
	}
	return model.Aria2Settings{URL: u, Token: tok}, nil
}

// SetAria2 保存外部下载代理配置
func (r *SettingsRepo) SetAria2(s model.Aria2Settings) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		repo := &SettingsRepo{db: tx}
		if err := repo.Set(SettingKeyAria2URL, s.URL); err != nil {
			return err
		}
		return repo.Set(SettingKeyAria2Token, s.Token)
	})
}

// DeliveryRepo 投递历史仓库
type DeliveryRepo struct {
	db *gorm.DB
}

// NewDeliveryRepo 创建投递历史仓库
func NewDeliveryRepo(db *gorm.DB) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

// Record 写入一条投递记录
func (r *DeliveryRepo) Record(rec *DeliveryRecord) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	return r.db.Create(rec).Error
}

// Recent 按时间倒序返回最近的投递记录
func (r *DeliveryRepo) Recent(limit int) ([]DeliveryRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []DeliveryRecord
	err := r.db.Order("timestamp DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// CleanupOlderThan 删除早于 retention 的投递记录
func (r *DeliveryRepo) CleanupOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res := r.db.Where("timestamp < ?", cutoff).Delete(&DeliveryRecord{})
	return res.RowsAffected, res.Error
}
