package xmlbroker

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CredentialsMode is how a transport authenticates against the broker.
type CredentialsMode int

const (
	// CredentialsAnonymous connects without a user; drivers fall back to
	// whatever the broker address itself carries.
	CredentialsAnonymous CredentialsMode = iota
	// CredentialsUserOnly connects with a user and an empty password.
	CredentialsUserOnly
	// CredentialsUserPassword connects with both user and password.
	CredentialsUserPassword
)

func (m CredentialsMode) String() string {
	switch m {
	case CredentialsUserOnly:
		return "user-only"
	case CredentialsUserPassword:
		return "user-password"
	default:
		return "anonymous"
	}
}

// Credentials are derived from a Config; see Config.Credentials.
type Credentials struct {
	Mode     CredentialsMode
	Username string
	Password string
}

// Config holds the broker address, optional credentials and the destination
// of a connection. It is immutable once built by NewConfig.
type Config struct {
	address     *url.URL
	userName    string
	password    string
	destination string
	isTopic     bool
}

// NewConfig validates and builds a Config. A nil address or a blank
// destination fails with a KindConfiguration error.
func NewConfig(address *url.URL, userName, password, destination string, isTopic bool) (Config, error) {
	c := Config{
		userName:    userName,
		password:    password,
		destination: destination,
		isTopic:     isTopic,
	}
	if address != nil {
		u := *address
		c.address = &u
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ParseConfig is NewConfig with the broker address given as a string.
func ParseConfig(address, userName, password, destination string, isTopic bool) (Config, error) {
	if strings.TrimSpace(address) == "" {
		return Config{}, Errorf(KindConfiguration, "config", "broker address is required")
	}
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil {
		return Config{}, NewError(KindConfiguration, "config", fmt.Errorf("broker address: %w", err))
	}
	return NewConfig(u, userName, password, destination, isTopic)
}

// Validate checks the invariants of the configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.address, validation.NotNil, validation.By(brokerAddress)),
		validation.Field(&c.destination, validation.Required, validation.By(notBlank)),
	)
	if err != nil {
		return NewError(KindConfiguration, "config", err)
	}
	return nil
}

func brokerAddress(value any) error {
	u, _ := value.(*url.URL)
	if u == nil {
		return nil
	}
	if u.Scheme == "" {
		return errors.New("must have a scheme")
	}
	if u.Host == "" && u.Opaque == "" {
		return errors.New("must have a host")
	}
	return nil
}

func notBlank(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// Address returns a copy of the broker address.
func (c Config) Address() *url.URL {
	if c.address == nil {
		return nil
	}
	u := *c.address
	return &u
}

// Scheme returns the lower-cased scheme of the broker address.
func (c Config) Scheme() string {
	if c.address == nil {
		return ""
	}
	return strings.ToLower(c.address.Scheme)
}

func (c Config) UserName() string        { return c.userName }
func (c Config) Password() string        { return c.password }
func (c Config) DestinationName() string { return c.destination }
func (c Config) IsTopic() bool           { return c.isTopic }

// Credentials derives how to authenticate: anonymously when the user is
// blank, with an empty password when only the password is blank, and with
// both otherwise.
func (c Config) Credentials() Credentials {
	switch {
	case strings.TrimSpace(c.userName) == "":
		return Credentials{Mode: CredentialsAnonymous}
	case strings.TrimSpace(c.password) == "":
		return Credentials{Mode: CredentialsUserOnly, Username: c.userName, Password: ""}
	default:
		return Credentials{Mode: CredentialsUserPassword, Username: c.userName, Password: c.password}
	}
}

// Destination resolves the configured destination. It performs no I/O.
func (c Config) Destination() Destination {
	if c.isTopic {
		return Topic(c.destination)
	}
	return Queue(c.destination)
}

// String describes the configuration without revealing the password.
func (c Config) String() string {
	addr := "<nil>"
	if c.address != nil {
		u := *c.address
		if u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "***")
			}
		}
		addr = u.String()
	}
	user := ""
	if c.userName != "" {
		user = " user=" + c.userName
	}
	return addr + user + " " + c.Destination().String()
}
