package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"rollbook/internal/client"
	"rollbook/internal/model"
	"rollbook/internal/report"
)

type commandLine struct {
	client *client.Client
	token  string
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  signup -name NAME -email EMAIL         - create a teacher account")
	fmt.Fprintln(cli.out, "  login -email EMAIL                     - print a token for ROLLBOOK_TOKEN")
	fmt.Fprintln(cli.out, "  forgot -email EMAIL                    - email a password reset code")
	fmt.Fprintln(cli.out, "  reset -code CODE                       - set a new password with a reset code")
	fmt.Fprintln(cli.out, "  students                               - list the roster")
	fmt.Fprintln(cli.out, "  add -username U -email E [-grade G]    - add a student")
	fmt.Fprintln(cli.out, "  delete -id ID                          - delete a student")
	fmt.Fprintln(cli.out, "  mark -id ID -status present|absent|late - mark today's attendance")
	fmt.Fprintln(cli.out, "  history -id ID [-days N]               - show recent attendance")
	fmt.Fprintln(cli.out, "  report [-period P] [-xlsx FILE]        - summarize the roster")
}

func (cli *commandLine) session() (*client.Session, error) {
	if cli.token == "" {
		return nil, errors.New("ROLLBOOK_TOKEN is not set, run login first")
	}
	return cli.client.Resume(cli.token), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fs := flag.NewFlagSet(args[1], flag.ContinueOnError)
	fs.SetOutput(cli.out)
	name := fs.String("name", "", "Teacher name.")
	email := fs.String("email", "", "Email address.")
	code := fs.String("code", "", "Reset code from the email.")
	username := fs.String("username", "", "Student username.")
	grade := fs.String("grade", "", "Student grade, e.g. \"Grade 9\".")
	id := fs.String("id", "", "Student id.")
	status := fs.String("status", "", "Attendance status.")
	days := fs.Int("days", 0, "Number of records to show.")
	period := fs.String("period", "daily", "Report period: daily, weekly or monthly.")
	xlsxPath := fs.String("xlsx", "", "Write the report to this XLSX file.")
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	required := func(vals ...string) error {
		for _, v := range vals {
			if v == "" {
				fs.Usage()
				return errHelp
			}
		}
		return nil
	}

	switch args[1] {
	case "signup":
		if err := required(*name, *email); err != nil {
			return err
		}
		pwd, err := promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if err := cli.client.Signup(ctx, *name, *email, pwd); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "Account created. Run login next.")
		return nil

	case "login":
		if err := required(*email); err != nil {
			return err
		}
		pwd, err := promptPassword("Enter password:")
		if err != nil {
			return err
		}
		sess, err := cli.client.Login(ctx, *email, pwd)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "Welcome, %s.\nexport ROLLBOOK_TOKEN=%s\n", sess.Name, sess.Token())
		return nil

	case "forgot":
		if err := required(*email); err != nil {
			return err
		}
		msg, err := cli.client.ForgotPassword(ctx, *email)
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, msg)
		return nil

	case "reset":
		if err := required(*code); err != nil {
			return err
		}
		pwd, err := promptPassword("Enter new password:")
		if err != nil {
			return err
		}
		if err := cli.client.ResetPassword(ctx, *code, pwd); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "Password updated.")
		return nil

	case "students":
		sess, err := cli.session()
		if err != nil {
			return err
		}
		roster, err := sess.Students(ctx)
		if err != nil {
			return err
		}
		cli.printRoster(roster)
		return nil

	case "add":
		if err := required(*username, *email); err != nil {
			return err
		}
		sess, err := cli.session()
		if err != nil {
			return err
		}
		pwd, err := promptPassword("Enter student password:")
		if err != nil {
			return err
		}
		st, err := sess.AddStudent(ctx, client.NewStudent{Username: *username, Email: *email, Password: pwd, Grade: *grade})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "Added %s (%s) %s\n", st.Username, st.Grade, st.ID)
		return nil

	case "delete":
		if err := required(*id); err != nil {
			return err
		}
		sess, err := cli.session()
		if err != nil {
			return err
		}
		if err := sess.DeleteStudent(ctx, *id); err != nil {
			return err
		}
		fmt.Fprintln(cli.out, "Student deleted.")
		return nil

	case "mark":
		if err := required(*id, *status); err != nil {
			return err
		}
		sess, err := cli.session()
		if err != nil {
			return err
		}
		msg, _, err := sess.Mark(ctx, *id, model.Status(*status))
		if err != nil {
			return err
		}
		fmt.Fprintln(cli.out, msg)
		return nil

	case "history":
		if err := required(*id); err != nil {
			return err
		}
		sess, err := cli.session()
		if err != nil {
			return err
		}
		h, err := sess.History(ctx, *id, *days)
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "%s <%s>\n", h.Student.Username, h.Student.Email)
		for _, rec := range h.Records {
			fmt.Fprintf(cli.out, "  %s  %s\n", rec.Date.Local().Format("2006-01-02 15:04"), rec.Status.Upper())
		}
		return nil

	case "report":
		p, err := report.ParsePeriod(*period)
		if err != nil {
			return err
		}
		sess, err := cli.session()
		if err != nil {
			return err
		}
		rep, err := sess.Report(ctx, p)
		if err != nil {
			return err
		}
		if *xlsxPath != "" {
			return writeXLSX(*xlsxPath, rep)
		}
		cli.printReport(rep)
		return nil

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) printRoster(roster []model.RosterEntry) {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tGRADE\tATTENDANCE")
	for _, e := range roster {
		att := "-"
		if e.Marked() {
			att = e.Attendance.Upper()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Username, e.Email, e.Grade, att)
	}
	_ = w.Flush()
}

func (cli *commandLine) printReport(r report.Report) {
	fmt.Fprintf(cli.out, "%s Attendance Report (%s)\n", r.Period, r.GeneratedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(cli.out, "Total %d  Present %d  Absent %d  Late %d\n", r.Stats.Total, r.Stats.Present, r.Stats.Absent, r.Stats.Late)
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	for _, row := range r.Students {
		fmt.Fprintf(w, "%s\t%s\t%s\n", row.Username, row.Email, row.Attendance.Upper())
	}
	_ = w.Flush()
}

func writeXLSX(path string, r report.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteXLSX(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
