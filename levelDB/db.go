package levelDB

import (
	"errors"

	"github.com/cloudflare/cfssl/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var ErrNotFound = leveldb.ErrNotFound

type DB struct {
	db *leveldb.DB
}

// 一组需要原子写入的修改
type Batch struct {
	b leveldb.Batch
}

func InitDB(path string) (*DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		log.Error("db init err:", err)
		return nil, err
	}
	return &DB{db: db}, nil
}

// 内存数据库，用于测试和本地网络
func InitMemDB() (*DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		log.Error("mem db init err:", err)
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) DBGet(key string) ([]byte, error) {
	data, err := d.db.Get([]byte(key), nil)
	if err != nil {
		if !errors.Is(err, leveldb.ErrNotFound) {
			log.Error("db get err:", err)
		}
		return nil, err
	}
	return data, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) NewBatch() *Batch {
	return &Batch{}
}

// 原子写入一批修改
func (d *DB) Write(b *Batch) error {
	err := d.db.Write(&b.b, nil)
	if err != nil {
		log.Error("db batch write err:", err)
	}
	return err
}

func (b *Batch) Put(key string, value []byte) {
	b.b.Put([]byte(key), value)
}

func (b *Batch) Len() int {
	return b.b.Len()
}
