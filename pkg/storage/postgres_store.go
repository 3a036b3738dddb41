package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/z-wentao/autocut/pkg/models"
)

// PostgresTaskStore PostgreSQL 任务存储（冷数据，持久化）
type PostgresTaskStore struct {
	db *sql.DB
}

// NewPostgresTaskStore 创建 PostgreSQL 任务存储
func NewPostgresTaskStore(connStr string) (*PostgresTaskStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &PostgresTaskStore{db: db}, nil
}

// Save 保存任务（UPSERT）
func (s *PostgresTaskStore) Save(task *models.Task) error {
	query := `
	INSERT INTO transcription_tasks (
	task_id, filename, media_kind, input_path, output_dir,
	status, error_kind, error, created_at, completed_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (task_id)
	DO UPDATE SET
	status = EXCLUDED.status,
	error_kind = EXCLUDED.error_kind,
	error = EXCLUDED.error,
	completed_at = EXCLUDED.completed_at
	`

	_, err := s.db.Exec(query,
		task.TaskID,
		task.Filename,
		task.MediaKind,
		task.InputPath,
		task.OutputDir,
		task.Status,
		task.ErrorKind,
		task.Error,
		task.CreatedAt,
		task.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("保存到数据库失败: %w", err)
	}

	return nil
}

// Get 获取任务
func (s *PostgresTaskStore) Get(taskID string) (*models.Task, error) {
	query := `
	SELECT task_id, filename, media_kind, input_path, output_dir,
	status, error_kind, error, created_at, completed_at
	FROM transcription_tasks
	WHERE task_id = $1
	`

	task, err := scanTask(s.db.QueryRow(query, taskID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("任务不存在: %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}

	return task, nil
}

// scanner 兼容 *sql.Row 和 *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanTask 扫描一行任务记录并处理 NULL 值
func scanTask(row scanner) (*models.Task, error) {
	var task models.Task
	var mediaKind, inputPath, outputDir, errorKind, errorMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&task.TaskID,
		&task.Filename,
		&mediaKind,
		&inputPath,
		&outputDir,
		&task.Status,
		&errorKind,
		&errorMsg,
		&task.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	// 处理 NULL 值
	if mediaKind.Valid {
		task.MediaKind = mediaKind.String
	}
	if inputPath.Valid {
		task.InputPath = inputPath.String
	}
	if outputDir.Valid {
		task.OutputDir = outputDir.String
	}
	if errorKind.Valid {
		task.ErrorKind = errorKind.String
	}
	if errorMsg.Valid {
		task.Error = errorMsg.String
	}
	if completedAt.Valid {
		task.CompletedAt = completedAt.Time
	}

	return &task, nil
}

// Update 更新任务
func (s *PostgresTaskStore) Update(taskID string, updateFn func(*models.Task)) error {
	// 1. 获取现有任务
	task, err := s.Get(taskID)
	if err != nil {
		return err
	}

	// 状态单调性：终态任务直接忽略更新
	if task.Status.IsTerminal() {
		return nil
	}

	// 2. 执行更新函数
	updateFn(task)

	// 3. 保存回数据库
	return s.Save(task)
}

// List 列出所有任务（按创建时间倒序）
func (s *PostgresTaskStore) List() ([]*models.Task, error) {
	query := `
	SELECT task_id, filename, media_kind, input_path, output_dir,
	status, error_kind, error, created_at, completed_at
	FROM transcription_tasks
	ORDER BY created_at DESC
	LIMIT 100
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("查询数据库失败: %w", err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			continue
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// Delete 删除任务
func (s *PostgresTaskStore) Delete(taskID string) error {
	query := `DELETE FROM transcription_tasks WHERE task_id = $1`

	result, err := s.db.Exec(query, taskID)
	if err != nil {
		return fmt.Errorf("删除任务失败: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取删除结果失败: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("任务不存在: %s", taskID)
	}

	return nil
}

// Close 关闭数据库连接
func (s *PostgresTaskStore) Close() error {
	return s.db.Close()
}
