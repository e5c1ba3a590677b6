package statusc

import "fmt"

type Status struct{ string }

var (
	Loaded       = Status{"loaded"}
	ReloadFailed = Status{"reload_failed"}
)

func (s Status) String() string {
	return s.string
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.string), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch str := string(b); str {
	case Loaded.string:
		*s = Loaded
	case ReloadFailed.string:
		*s = ReloadFailed
	default:
		return fmt.Errorf("unknown status: %s", str)
	}
	return nil
}
