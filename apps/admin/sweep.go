package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/attempt"
	"github.com/kazilabs/mtihani/storage/database"
)

// sweep runs one safety sweep and prints its report.
func (cli *commandLine) sweep() error {
	ctx := context.Background()
	sweeper := attempt.NewSweeper(
		database.NewAttemptRepository(cli.db),
		database.NewExamRepository(cli.db),
		core.NewClock(),
		cli.log,
	)

	report, err := sweeper.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("auto-submitted: %d\n", report.AutoSubmitted)
	fmt.Printf("duplicates closed: %d\n", report.DuplicatesClosed)
	fmt.Printf("anomalies: %d\n", len(report.Anomalies))
	for _, an := range report.Anomalies {
		fmt.Printf("  %s: attempt %s: %s\n", an.Type, an.AttemptID, an.Detail)
	}
	return nil
}

func (cli *commandLine) listAttempts(ordering string) error {
	ctx := context.Background()
	repo := database.NewAttemptRepository(cli.db)

	var orderings []core.DBOrdering
	if ordering != "" {
		for _, field := range strings.Split(ordering, ",") {
			field = core.CleanString(field)
			descending := strings.HasPrefix(field, "-")
			if descending {
				field = field[1:]
			}
			orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}

	atts, err := repo.QueryAllAttempts(ctx, orderings...)
	if err != nil {
		return err
	}
	for _, att := range atts {
		fmt.Printf("%s  exam=%s student=%s no=%d status=%s started=%s\n",
			att.ID, att.ExamID, att.StudentID, att.AttemptNo, att.Status, att.StartedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("%d attempt(s)\n", len(atts))
	return nil
}
