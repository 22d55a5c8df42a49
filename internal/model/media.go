package model

import "time"

// Media is the metadata record for one uploaded generation result.
type Media struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID     string    `gorm:"size:255;index" json:"ownerId"`
	Key         string    `gorm:"size:512;not null" json:"key"`
	URL         string    `gorm:"size:1024;not null" json:"url"`
	ContentType string    `gorm:"size:128" json:"contentType"`
	SizeBytes   int64     `gorm:"default:0" json:"sizeBytes"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}
