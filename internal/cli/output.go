package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"serotonyl.ru/rewards-ledger/internal/common"
)

// Коды выхода.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // отказ по бизнес-правилу, расхождение при сверке
	ExitCommandError = 2 // некорректные аргументы, конфигурация, база недоступна
)

// ExitError — ошибка с кодом выхода.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError создаёт ExitError.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError оборачивает ошибку с кодом выхода.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode извлекает код выхода. Некорректный ввод — ExitCommandError,
// остальные ошибки без кода — ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, common.ErrInvalidInput) {
		return ExitCommandError
	}
	return ExitFailure
}

// Response — формат ответа в режиме json.
type Response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// printer выводит результат в выбранном формате.
type printer struct {
	format string
	w      io.Writer
}

// ok выводит data как json либо вызывает text для человекочитаемого вида.
func (p *printer) ok(data any, text func(w io.Writer)) error {
	if p.format == "json" {
		return json.NewEncoder(p.w).Encode(Response{Status: "ok", Data: data})
	}
	text(p.w)
	return nil
}

// WriteError выводит ошибку команды в выбранном формате.
func WriteError(w io.Writer, format string, err error) {
	if format == "json" {
		_ = json.NewEncoder(w).Encode(Response{Status: "error", Error: err.Error()})
		return
	}
	fmt.Fprintf(w, "Ошибка: %v\n", err)
}
