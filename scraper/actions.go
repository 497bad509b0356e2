package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// settleDelay gives the portal's scripts time to react to input events.
const settleDelay = 500 * time.Millisecond

// fillInput replaces whatever the field holds with text.
func fillInput(ctx context.Context, el *rod.Element, text string) error {
	e := el.Context(ctx)
	if err := e.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to input: %w", err)
	}
	if err := e.Focus(); err != nil {
		return fmt.Errorf("focus input: %w", err)
	}
	if err := e.SelectAllText(); err != nil {
		return fmt.Errorf("select input text: %w", err)
	}
	if err := e.Type(input.Backspace); err != nil {
		return fmt.Errorf("clear input: %w", err)
	}
	if err := e.Input(text); err != nil {
		return fmt.Errorf("type query: %w", err)
	}
	return pause(ctx, settleDelay)
}

// submitStrategy is one way of sending the search form.
type submitStrategy struct {
	name string
	run  func(ctx context.Context, page *rod.Page, el *rod.Element) error
}

// submitStrategies are tried in order; the first that completes without an
// error is taken as the submission.
func (n *Navigator) submitStrategies() []submitStrategy {
	return []submitStrategy{
		{name: "enter", run: func(ctx context.Context, _ *rod.Page, el *rod.Element) error {
			if err := el.Context(ctx).Type(input.Enter); err != nil {
				return err
			}
			return pause(ctx, 2*settleDelay)
		}},
		{name: "form-button", run: func(ctx context.Context, _ *rod.Page, el *rod.Element) error {
			forms, err := el.Context(ctx).ElementsX(enclosingFormXPath)
			if err != nil {
				return err
			}
			if forms.Empty() {
				return errors.New("input is not inside a form")
			}
			buttons, err := forms.First().ElementsX(formSubmitXPath)
			if err != nil {
				return err
			}
			if buttons.Empty() {
				return errors.New("no submit control in form")
			}
			return n.clickWhenReady(ctx, buttons.First())
		}},
		{name: "page-button", run: func(ctx context.Context, page *rod.Page, _ *rod.Element) error {
			tctx, cancel := context.WithTimeout(ctx, n.cfg.ClickableTimeout)
			defer cancel()
			btn, err := page.Context(tctx).ElementX(pageSubmitXPath)
			if err != nil {
				return err
			}
			return n.clickWhenReady(ctx, btn)
		}},
	}
}

// clickWhenReady waits for el to become interactable, then clicks it.
func (n *Navigator) clickWhenReady(ctx context.Context, el *rod.Element) error {
	tctx, cancel := context.WithTimeout(ctx, n.cfg.ClickableTimeout)
	defer cancel()

	e := el.Context(tctx)
	if _, err := e.WaitInteractable(); err != nil {
		return fmt.Errorf("submit control not clickable: %w", err)
	}
	return e.Click(proto.InputMouseButtonLeft, 1)
}

func runSubmitStrategies(ctx context.Context, page *rod.Page, el *rod.Element, strategies []submitStrategy) (string, error) {
	var errs []error
	for _, s := range strategies {
		err := s.run(ctx, page, el)
		if err == nil {
			return s.name, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Debug("submit strategy failed", "strategy", s.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return "", errors.Join(errs...)
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
