package mailer

import (
	"errors"
	"fmt"

	"marketplace_auth/internal/models"

	"gopkg.in/gomail.v2"
)

var ErrUnknownPurpose = errors.New("unknown email purpose")

type Mailer struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Send composes and delivers msg over SMTP.
func (m *Mailer) Send(msg models.Message) error {
	const op = "mailer.Send"

	gm, err := m.build(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	dialer := gomail.NewDialer(m.Host, m.Port, m.Username, m.Password)
	if err := dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (m *Mailer) build(msg models.Message) (*gomail.Message, error) {
	subject, body, err := Compose(msg)
	if err != nil {
		return nil, err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("To", msg.Email)
	gm.SetHeader("From", m.Username)
	gm.SetHeader("Subject", subject)
	gm.SetBody("text/plain", body)

	return gm, nil
}

// * Compose формирует тему и текст письма по его назначению
func Compose(msg models.Message) (subject, body string, err error) {
	greeting := "Здравствуйте!"
	if msg.FirstName != "" {
		greeting = fmt.Sprintf("Здравствуйте, %s!", msg.FirstName)
	}

	switch msg.Purpose {
	case models.PurposePasswordReset:
		return "Сброс пароля", fmt.Sprintf(
			"%s\n\nЧтобы задать новый пароль, перейдите по ссылке:\n%s\n\n"+
				"Ссылка действует один час и может быть использована один раз.\n"+
				"Если вы не запрашивали сброс пароля, просто проигнорируйте это письмо.",
			greeting, msg.Link,
		), nil
	case models.PurposeWelcome:
		return "Добро пожаловать", fmt.Sprintf(
			"%s\n\nВаш аккаунт создан. Войти можно здесь:\n%s",
			greeting, msg.Link,
		), nil
	case models.PurposePasswordChanged:
		return "Пароль изменен", fmt.Sprintf(
			"%s\n\nПароль вашего аккаунта был изменен, все сессии завершены.\n"+
				"Если это были не вы, восстановите доступ по ссылке:\n%s",
			greeting, msg.Link,
		), nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownPurpose, msg.Purpose)
	}
}
