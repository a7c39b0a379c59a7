package iocli

//go:generate go tool moq -out io_mock.go . IO

// IO абстрагирует терминал, чтобы команды CLI можно было тестировать
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
