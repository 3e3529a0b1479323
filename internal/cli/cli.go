package cli

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/buger/goterm"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

var (
	// Colors for different types of output
	userInputColor = color.New(color.FgWhite)
	aiOutputColor  = color.New(color.FgCyan)
	titleColor     = color.New(color.FgMagenta, color.Bold)
	separatorColor = color.New(color.FgHiBlack)
	costColor      = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
	successColor   = color.New(color.FgGreen)
	promptColor    = color.New(color.FgHiBlue)

	width = goterm.Width()
)

// Separator printed to cli.
func Separator() {
	separator := strings.Repeat("-", width)
	separatorColor.Println(separator)
}

// Title printed to cli.
func Title(text string, args ...any) {
	title := "      " + fmt.Sprintf(text, args...) + "      "
	leftWidth := (width - len(title)) / 2
	if leftWidth < 0 {
		leftWidth = 0
	}
	separator1 := strings.Repeat("-", leftWidth)
	separator2 := strings.Repeat("-", max(width-len(title)-len(separator1), 0))
	titleColor.Printf("%s%s%s\n", separator1, title, separator2)
}

// UserInput printed to cli.
func UserInput(text string, args ...any) {
	userInputColor.Printf(text, args...)
}

// AIOutput printed to cli.
func AIOutput(text string, args ...any) {
	aiOutputColor.Printf(text, args...)
}

// CostInfo printed to cli.
func CostInfo(text string, args ...any) {
	costColor.Printf(text, args...)
}

// Error printed to cli.
func Error(text string, args ...any) {
	errorColor.Printf(text, args...)
}

// Success printed to cli.
func Success(text string, args ...any) {
	successColor.Printf(text, args...)
}

// PromptUser for input.
func PromptUser() (string, error) {
	config := &readline.Config{
		Prompt:            promptColor.Sprint("> "),
		InterruptPrompt:   "^C",
		HistoryFile:       "/tmp/ogchat.history",
		HistorySearchFold: true,
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return "", err
	}
	defer rl.Close()
	line, err := rl.Readline()
	if err != nil {
		return "", err
	}
	return line, nil
}

// QueryUser a yes/no question.
func QueryUser(question string) bool {
	surveyQuestion := &survey.Confirm{
		Message: question,
	}
	confirm := false
	survey.AskOne(surveyQuestion, &confirm)
	return confirm
}
