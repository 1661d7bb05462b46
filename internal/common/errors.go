// Package common — errors.go определяет ошибки, которые используются
// во всех модулях леджера.
// Ожидаемые конфликты идемпотентности сюда НЕ входят: движки возвращают
// их как обычный результат (AlreadyCheckedIn, AlreadyRecorded и т.д.).
package common

import "errors"

// Некорректный ввод — отклоняется до любой записи в БД
var (
	// ErrInvalidInput — общий предок всех ошибок валидации
	ErrInvalidInput = errors.New("некорректные входные данные")
	// ErrEmptyReason — причина изменения баланса обязательна
	ErrEmptyReason = wrapInvalid("причина не может быть пустой")
	// ErrInvalidID — идентификатор пользователя/сервера/поста некорректен
	ErrInvalidID = wrapInvalid("некорректный идентификатор")
	// ErrInvalidAmount — ноль или слишком большая сумма
	ErrInvalidAmount = wrapInvalid("некорректная сумма изменения")
	// ErrUnknownAction — неизвестный тип действия в соцсети
	ErrUnknownAction = wrapInvalid("неизвестный тип действия")
	// ErrUnknownConfigKey — ключ конфигурации сервера не поддерживается
	ErrUnknownConfigKey = wrapInvalid("неизвестный ключ конфигурации")
	// ErrInvalidConfigValue — значение конфигурации не парсится
	ErrInvalidConfigValue = wrapInvalid("некорректное значение конфигурации")
	// ErrDuplicateState — state уже существует
	ErrDuplicateState = wrapInvalid("state уже используется")
	// ErrInvalidWallet — адрес кошелька пустой, длинный или с пробелами
	ErrInvalidWallet = wrapInvalid("некорректный адрес кошелька")
)

// Ошибки бизнес-правил
var (
	// ErrInsufficientPoints — списание уводит баланс ниже нуля (политика reject)
	ErrInsufficientPoints = errors.New("недостаточно баллов")
	// ErrUnknownPost — целевой пост не настроен или выключен
	ErrUnknownPost = errors.New("целевой пост не найден")
	// ErrBindingNotFound — аккаунт соцсети не привязан
	ErrBindingNotFound = errors.New("аккаунт не привязан")
	// ErrBindingMismatch — внешний аккаунт не совпадает с привязанным
	ErrBindingMismatch = errors.New("внешний аккаунт не совпадает с привязкой")
	// ErrWarningNotFound — предупреждение не найдено
	ErrWarningNotFound = errors.New("предупреждение не найдено")
	// ErrMemberNotFound — пользователь не зарегистрирован в ранней роли
	ErrMemberNotFound = errors.New("участник ранней роли не найден")
)

// Фатальные ошибки
var (
	// ErrInvariantViolation — нарушен инвариант (неожиданный constraint,
	// несходящаяся арифметика аудита). Операция откатывается целиком.
	ErrInvariantViolation = errors.New("нарушение инварианта")
	// ErrRetriesExhausted — временная ошибка БД не прошла после всех попыток
	ErrRetriesExhausted = errors.New("исчерпаны попытки повтора")
)

type invalidError struct{ msg string }

func (e *invalidError) Error() string { return e.msg }

// Is позволяет проверять любую ошибку валидации через errors.Is(err, ErrInvalidInput).
func (e *invalidError) Is(target error) bool { return target == ErrInvalidInput }

func wrapInvalid(msg string) error { return &invalidError{msg: msg} }
