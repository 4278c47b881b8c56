// Package directory implements the membership/authorization lookups
// the coordination core consumes, over the application's relational
// schema. The core only sees core.Directory; tests substitute fakes.
package directory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wavechat/wave/internal/core"
	"github.com/wavechat/wave/internal/domain"
)

type orgMember struct {
	OrgID  string `gorm:"column:org_id;primaryKey"`
	UserID string `gorm:"column:user_id;primaryKey"`
	Role   string `gorm:"column:role"`
}

func (orgMember) TableName() string { return "org_members" }

type channel struct {
	ID    string `gorm:"column:id;primaryKey"`
	OrgID string `gorm:"column:org_id"`
	Name  string `gorm:"column:name"`
	Kind  string `gorm:"column:kind"`
}

func (channel) TableName() string { return "channels" }

type Directory struct {
	db *gorm.DB
}

var _ core.Directory = (*Directory)(nil)

// Open connects to the application database.
func Open(dsn string) (*Directory, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open directory db: %w", err)
	}
	return &Directory{db: db}, nil
}

func New(db *gorm.DB) *Directory { return &Directory{db: db} }

func (d *Directory) IsMember(ctx context.Context, userID domain.UserID, orgID domain.OrgID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&orgMember{}).
		Where("org_id = ? AND user_id = ?", string(orgID), string(userID)).
		Count(&count).Error
	return count > 0, err
}

func (d *Directory) IsOwner(ctx context.Context, userID domain.UserID, orgID domain.OrgID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&orgMember{}).
		Where("org_id = ? AND user_id = ? AND role = ?", string(orgID), string(userID), "owner").
		Count(&count).Error
	return count > 0, err
}

func (d *Directory) ChannelByID(ctx context.Context, id domain.ChannelID) (*domain.Channel, error) {
	var row channel
	err := d.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: channel %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &domain.Channel{
		ID:    domain.ChannelID(row.ID),
		OrgID: domain.OrgID(row.OrgID),
		Name:  row.Name,
		Kind:  domain.ChannelKind(row.Kind),
	}, nil
}

func (d *Directory) OrgsOf(ctx context.Context, userID domain.UserID) ([]domain.OrgID, error) {
	var rows []orgMember
	if err := d.db.WithContext(ctx).Where("user_id = ?", string(userID)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.OrgID, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.OrgID(r.OrgID))
	}
	return out, nil
}
