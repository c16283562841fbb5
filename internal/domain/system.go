package domain

// SysConfig is a generic key/value settings row grouped by type.
type SysConfig struct {
	ID     int64  `gorm:"primaryKey" json:"id"`
	Sort   int    `gorm:"default:0" json:"sort"`
	Type   string `gorm:"size:64;index" json:"type"`
	Name   string `gorm:"size:128;index" json:"name"`
	Value  string `gorm:"size:512" json:"value"`
	Remark string `gorm:"size:512" json:"remark"`
}
