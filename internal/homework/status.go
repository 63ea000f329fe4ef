package homework

import "fmt"

const (
	StatusApproved  = "approved"
	StatusReviewing = "reviewing"
	StatusRejected  = "rejected"
)

var verdicts = map[string]string{
	StatusApproved:  "Работа проверена: ревьюеру всё понравилось. Ура!",
	StatusReviewing: "Работа взята на проверку ревьюером.",
	StatusRejected:  "Работа проверена: у ревьюера есть замечания.",
}

// Verdict returns the human-readable sentence for a status code.
func Verdict(status string) (string, bool) {
	v, ok := verdicts[status]
	return v, ok
}

// ParseStatus turns a record into the notification text.
// It is a pure function of (name, status).
func ParseStatus(r Record) (string, error) {
	const op = "parse_status"
	if !r.HasName {
		return "", newError(KindMissingField, op, nil, "homework_name not found in homework")
	}
	if !r.HasStatus {
		return "", newError(KindMissingField, op, nil, "status not found for homework %q", r.Name)
	}
	verdict, ok := verdicts[r.Status]
	if !ok {
		return "", newError(KindMissingField, op, nil, "unknown status %q for homework %q", r.Status, r.Name)
	}
	return fmt.Sprintf("Изменился статус проверки работы \"%s\". %s", r.Name, verdict), nil
}
