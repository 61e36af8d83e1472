package setup

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/ubc-biztech/btx/config"
)

// DefaultFile file the wizard writes.
const DefaultFile = "config.gen.yaml"

// ErrCancelled the user declined to save.
var ErrCancelled = errors.New("setup cancelled by user")

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers values collected by the wizard.
type Answers struct {
	EventID      string
	UserID       string
	APIURL       string
	AuthToken    string
	PushEnabled  bool
	Reconnect    bool
	PushURL      string
	PollInterval string
	TradesLimit  string
}

func step(title string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("BTX CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	if path == "" {
		path = DefaultFile
	}

	a := Answers{
		APIURL:       config.DefaultAPIURL,
		PushEnabled:  true,
		PollInterval: config.DefaultPollInterval.String(),
		TradesLimit:  strconv.Itoa(config.DefaultTradesLimit),
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("BTX CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Follow an event's market from your terminal.\n"))

	fmt.Println(stepStyle.Render("STEP 1: EVENT"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Event ID").
				Value(&a.EventID).
				Validate(notEmpty("event id")),
			huh.NewInput().
				Title("User ID").
				Description("Sent with the push subscription, empty for anonymous").
				Value(&a.UserID),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: BACKEND")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API URL").
				Value(&a.APIURL).
				Validate(validateURL("http", "https")),
			huh.NewInput().
				Title("Auth Token").
				Description("Leave empty to read " + config.AuthTokenEnv).
				Value(&a.AuthToken).
				EchoMode(huh.EchoModePassword),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 3: LIVE PRICES")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Subscribe to live price updates?").
				Value(&a.PushEnabled),
		),
	).Run()
	if err != nil {
		return err
	}

	if a.PushEnabled {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Push URL").
					Description("Empty uses " + config.PushURLEnv + " or the local default").
					Value(&a.PushURL).
					Validate(optional(validateURL("ws", "wss"))),
				huh.NewConfirm().
					Title("Reconnect after the feed drops?").
					Value(&a.Reconnect),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	step("STEP 4: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Snapshot Poll Interval").
				Description("Duration string (e.g. 4s, 10s, 1m)").
				Value(&a.PollInterval).
				Validate(validateInterval),
			huh.NewInput().
				Title("Trade Log Size").
				Value(&a.TradesLimit).
				Validate(validateLimit),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Event: %s\nAPI: %s\nPush: %t\nReconnect: %t\nInterval: %s\n",
		a.EventID, a.APIURL, a.PushEnabled, a.Reconnect, a.PollInterval,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	var confirm bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return ErrCancelled
	}

	tmp, err := a.ConfigTmp()
	if err != nil {
		return err
	}
	if err := config.WriteYaml(path, tmp); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting...", path)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

// ConfigTmp converts the answers into the yaml representation.
func (a Answers) ConfigTmp() (config.ConfigTmp, error) {
	interval, err := time.ParseDuration(a.PollInterval)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "poll interval")
	}
	limit, err := strconv.Atoi(a.TradesLimit)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "trades limit")
	}

	push := a.PushEnabled
	tmp := config.ConfigTmp{
		EventID:      strings.TrimSpace(a.EventID),
		UserID:       strings.TrimSpace(a.UserID),
		APIURL:       a.APIURL,
		AuthToken:    a.AuthToken,
		PollInterval: interval,
		TradesLimit:  limit,
		PushEnabled:  &push,
	}
	if push {
		tmp.PushURL = a.PushURL
		tmp.Reconnect = a.Reconnect
	}
	return tmp, nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func optional(validate func(string) error) func(string) error {
	return func(s string) error {
		if s == "" {
			return nil
		}
		return validate(s)
	}
}

func validateURL(schemes ...string) func(string) error {
	return func(s string) error {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return errors.New("must be an absolute url")
		}
		for _, scheme := range schemes {
			if u.Scheme == scheme {
				return nil
			}
		}
		return errors.Errorf("scheme must be one of %s", strings.Join(schemes, ", "))
	}
}

func validateInterval(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return errors.New("must be a duration")
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}

func validateLimit(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return errors.New("must be a whole number")
	}
	if n <= 0 {
		return errors.New("must be positive")
	}
	return nil
}
