package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/config"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is where the wizard writes its result.
const DefaultConfigFile = "config.gen.yaml"

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

// Answers collected by the wizard.
type Answers struct {
	Pair                string
	Interval            string
	LookbackPeriod      string
	ClimaxMultiplier    string
	RisingMultiplier    string
	RequireConfirmation bool
	FusionWeight        string
	Cooldown            string
	SizingMode          string // fixed or percent
	Amount              string
	Leverage            string
	LiveTrading         bool
}

func defaultAnswers() Answers {
	return Answers{
		Interval:         config.DefaultInterval,
		LookbackPeriod:   fmt.Sprint(config.DefaultLookbackPeriod),
		ClimaxMultiplier: config.DefaultClimaxMultiplier,
		RisingMultiplier: config.DefaultRisingMultiplier,
		FusionWeight:     fmt.Sprint(config.DefaultFusionWeight),
		Cooldown:         config.DefaultCooldown.String(),
		SizingMode:       "fixed",
		Amount:           config.DefaultTradeAmount,
		Leverage:         fmt.Sprint(config.DefaultLeverage),
	}
}

// RunTUI launches the terminal configuration wizard and returns the written path.
func RunTUI() (string, error) {
	a := defaultAnswers()
	var confirm bool

	screen("STEP 1: MARKET")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Volume alerts and guarded futures entries.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Pair").
				Description("BASE_QUOTE, e.g. SUI_USDT").
				Value(&a.Pair).
				Validate(validatePair),
			huh.NewSelect[string]().
				Title("Kline interval").
				Options(huh.NewOptions("1m", "3m", "5m", "15m", "30m", "1h", "4h", "1d")...).
				Value(&a.Interval),
		),
	).Run()
	if err != nil {
		return "", err
	}

	screen("STEP 2: VOLUME THRESHOLDS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Lookback period").
				Description("Bars averaged for the volume baseline").
				Value(&a.LookbackPeriod),
			huh.NewInput().
				Title("Climax multiplier").
				Value(&a.ClimaxMultiplier).
				Validate(validatePositive),
			huh.NewInput().
				Title("Rising multiplier").
				Value(&a.RisingMultiplier).
				Validate(validatePositive),
		),
	).Run()
	if err != nil {
		return "", err
	}

	screen("STEP 3: DECISIONS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Require a fresh alert to trade?").
				Value(&a.RequireConfirmation),
			huh.NewInput().
				Title("Alert weight").
				Description("Share of the alert in fused confidence (0-1)").
				Value(&a.FusionWeight),
			huh.NewInput().
				Title("Cooldown").
				Description("Duration between trades (e.g. 30s, 5m)").
				Value(&a.Cooldown).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return "", err
	}

	screen("STEP 4: SIZING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Margin per trade").
				Options(
					huh.NewOption("Fixed quote amount", "fixed"),
					huh.NewOption("Percent of balance", "percent"),
				).
				Value(&a.SizingMode),
			huh.NewInput().
				Title("Amount").
				Description("Quote amount, or percent (1-100)").
				Value(&a.Amount).
				Validate(validatePositive),
			huh.NewInput().
				Title("Leverage").
				Value(&a.Leverage),
			huh.NewConfirm().
				Title("Live trading?").
				Description("No means orders are simulated").
				Value(&a.LiveTrading),
		),
	).Run()
	if err != nil {
		return "", err
	}

	cfg, err := BuildConfig(a)
	if err != nil {
		return "", err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Pair: %s\nInterval: %s\nThresholds: x%s climax, x%s rising over %s bars\nConfirmation: %v\nLive: %v\n",
		cfg.Pair, cfg.Interval, a.ClimaxMultiplier, a.RisingMultiplier, a.LookbackPeriod, cfg.RequireConfirmation, cfg.LiveTrading,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

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
		return "", err
	}
	if !confirm {
		return "", errors.New("setup cancelled by user")
	}

	if err := WriteConfig(DefaultConfigFile, []config.ConfigTmp{cfg}); err != nil {
		return "", err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\nConfiguration saved to %s\nStarting monitor...", DefaultConfigFile)))
	time.Sleep(1500 * time.Millisecond)
	return DefaultConfigFile, nil
}

func screen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("PVSRA CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// BuildConfig converts wizard answers and checks them with the config parser.
func BuildConfig(a Answers) (config.ConfigTmp, error) {
	c := config.ConfigTmp{
		Pair:                a.Pair,
		Interval:            a.Interval,
		LookbackPeriod:      a.LookbackPeriod,
		ClimaxMultiplier:    a.ClimaxMultiplier,
		RisingMultiplier:    a.RisingMultiplier,
		RequireConfirmation: a.RequireConfirmation,
		FusionWeight:        a.FusionWeight,
		Cooldown:            a.Cooldown,
		Leverage:            a.Leverage,
		LiveTrading:         a.LiveTrading,
	}
	if a.SizingMode == "percent" {
		c.TradeAmountPercent = a.Amount
	} else {
		c.TradeAmount = a.Amount
	}

	if _, err := c.Parse(); err != nil {
		return config.ConfigTmp{}, err
	}
	return c, nil
}

// WriteConfig stores configs in the YAML layout read by config.Load.
func WriteConfig(path string, configs []config.ConfigTmp) error {
	data, err := yaml.Marshal(configs)
	if err != nil {
		return errors.Wrap(err, "failed to generate yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	return nil
}

func validatePair(s string) error {
	if s == "" {
		return errors.New("pair cannot be empty")
	}
	for _, r := range s {
		if r == '_' {
			return nil
		}
	}
	return errors.New("invalid format: must be BASE_QUOTE (e.g. BTC_USDT)")
}

func validatePositive(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.New("must be a valid number")
	}
	if !d.IsPositive() {
		return errors.New("must be positive")
	}
	return nil
}
