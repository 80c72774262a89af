package wal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// 自己定義常用的權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀) - 適用於大多數檔案
	FileModeReadOnly fs.FileMode = 0644

	// rw------- (只有擁有者可讀寫) - 適用於私鑰、機密檔
	FileModePrivate fs.FileMode = 0600
)

// WAL 以 JSON Lines 格式追加寫入的 Write-Ahead Log
type WAL struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// Record 一筆 WAL 紀錄的外層結構
// Kind 讓不同型別的資料可以寫進同一個檔案
type Record struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string) (*WAL, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, err
	}
	return &WAL{path: path, file: file}, nil
}

func openFile(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, fmt.Errorf("failed to open wal %s: %w", path, err)
	}
	return file, nil
}

// NewRecord 將資料編碼成一筆紀錄 (供 Rewrite 使用)
func NewRecord(kind string, v any) (Record, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode wal payload: %w", err)
	}
	return Record{Kind: kind, Payload: payload}, nil
}

// Append 寫入一筆紀錄並刷入硬碟
//
// 參數:
//
//	kind: 紀錄類型
//	v: 任意可被 json 序列化的資料
func (w *WAL) Append(kind string, v any) error {
	rec, err := NewRecord(kind, v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := json.NewEncoder(w.file).Encode(rec); err != nil {
		return fmt.Errorf("failed to write wal record: %w", err)
	}
	// 刷入硬碟 (關鍵！)
	return w.file.Sync()
}

// Close 關閉檔案
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Replay 從頭依序讀取所有紀錄
// callback 一次處理一筆，避免一次將所有資料載入記憶體
func (w *WAL) Replay(callback func(rec Record) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(w.file)
	for {
		var rec Record
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to decode wal record: %w", err)
		}
		if err := callback(rec); err != nil {
			return err
		}
	}
	return nil
}

// Rewrite 以 records 取代整個檔案內容 (壓縮用)
// 先寫入暫存檔並 Sync，再 rename 蓋過原檔；中途失敗時原檔不變
func (w *WAL) Rewrite(records []Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tmpPath := w.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FileModePrivate)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}
	encoder := json.NewEncoder(tmp)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write wal record: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace wal: %w", err)
	}

	// 原本的 handle 指向舊檔，重新開啟
	file, err := openFile(w.path)
	if err != nil {
		return err
	}
	w.file.Close()
	w.file = file
	return nil
}
