package service

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// stageFile 一个阶段的输入文件；文件名为 <base>.<provider>.csv 时整份文件属于该数据源
type stageFile struct {
	path     string
	provider string
}

func (f stageFile) name() string { return filepath.Base(f.path) }

// discoverFiles 先 <base>.csv，再按文件名排序的 <base>.<provider>.csv
func discoverFiles(dir, base string) ([]stageFile, error) {
	var files []stageFile
	main := filepath.Join(dir, base+".csv")
	if _, err := os.Stat(main); err == nil {
		files = append(files, stageFile{path: main})
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, base+".*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	for _, m := range matches {
		provider := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), base+"."), ".csv")
		if provider == "" || strings.Contains(provider, ".") {
			continue
		}
		files = append(files, stageFile{path: m, provider: strings.ToLower(provider)})
	}
	return files, nil
}

// csvRow 按表头（小写）取值的一行
type csvRow struct {
	file   string
	line   int
	values map[string]string
}

func (r csvRow) get(col string) string {
	return strings.TrimSpace(r.values[col])
}

// id 空值返回 nil
func (r csvRow) id(col string) (*uint64, error) {
	v := r.get(col)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s 不是合法ID: %q", col, v)
	}
	return &n, nil
}

func (r csvRow) boolean(col string, def bool) bool {
	switch strings.ToLower(r.get(col)) {
	case "1", "true", "t", "yes", "y":
		return true
	case "0", "false", "f", "no", "n":
		return false
	default:
		return def
	}
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// timestamp 空值或无法解析返回 nil
func (r csvRow) timestamp(col string) *time.Time {
	v := r.get(col)
	if v == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// readCSV 逐行回调；解析错误视为文件级错误，已回调的行不受影响
func readCSV(path string, each func(row csvRow) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开文件失败: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("读取表头失败: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	name := filepath.Base(path)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("解析CSV失败: %w", err)
		}
		line, _ := r.FieldPos(0)
		row := csvRow{file: name, line: line, values: make(map[string]string, len(cols))}
		for i, c := range cols {
			if i < len(rec) {
				row.values[c] = rec[i]
			}
		}
		if err := each(row); err != nil {
			return err
		}
	}
}
