package mocknet

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Fraser999/safe-core/native"
)

// ChunkModel is the table row of a stored chunk.
type ChunkModel struct {
	ChunkKey    string `gorm:"primaryKey"`
	Kind        uint8
	Name        []byte
	TypeTag     uint64
	Owner       []byte
	Version     uint64
	Size        int
	Compression uint8
	Content     []byte
}

func (ChunkModel) TableName() string {
	return "chunks"
}

// SQLiteVault persists chunks in a sqlite database.
type SQLiteVault struct {
	db   *gorm.DB
	path string
}

// OpenSQLiteVault opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLiteVault(path string) (*SQLiteVault, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w (path: %s)", err, path)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := db.AutoMigrate(&ChunkModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate vault: %w", err)
	}
	return &SQLiteVault{db: db, path: path}, nil
}

// Path returns the database location.
func (v *SQLiteVault) Path() string { return v.path }

func (v *SQLiteVault) Load(id native.DataID) (Chunk, bool, error) {
	var m ChunkModel
	if err := v.db.First(&m, "chunk_key = ?", key(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Chunk{}, false, nil
		}
		return Chunk{}, false, err
	}
	return modelToChunk(m), true, nil
}

func (v *SQLiteVault) Store(c Chunk) error {
	m := chunkToModel(c)
	return v.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

func (v *SQLiteVault) Remove(id native.DataID) error {
	return v.db.Delete(&ChunkModel{}, "chunk_key = ?", key(id)).Error
}

func (v *SQLiteVault) Len() (int, error) {
	var n int64
	if err := v.db.Model(&ChunkModel{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return int(n), nil
}

func (v *SQLiteVault) Close() error {
	sqlDB, err := v.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func chunkToModel(c Chunk) ChunkModel {
	return ChunkModel{
		ChunkKey:    key(c.ID),
		Kind:        uint8(c.ID.Kind),
		Name:        c.ID.Name[:],
		TypeTag:     c.ID.TypeTag,
		Owner:       c.Owner[:],
		Version:     c.Version,
		Size:        c.Size,
		Compression: uint8(c.Compression),
		Content:     c.Content,
	}
}

func modelToChunk(m ChunkModel) Chunk {
	c := Chunk{
		ID: native.DataID{
			Kind:    native.DataKind(m.Kind),
			TypeTag: m.TypeTag,
		},
		Version:     m.Version,
		Size:        m.Size,
		Compression: Compression(m.Compression),
		Content:     m.Content,
	}
	copy(c.ID.Name[:], m.Name)
	copy(c.Owner[:], m.Owner)
	return c
}
