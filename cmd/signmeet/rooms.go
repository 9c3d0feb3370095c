package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/dkeye/SignMeet/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the server and classifier status",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := setup(cmd)
		if err != nil {
			return err
		}
		h, err := client.Health(cmd.Context())
		if err != nil {
			return err
		}
		model := warnStyle.Render("not loaded")
		if h.ModelLoaded {
			model = okStyle.Render("loaded")
		}
		fmt.Printf("%s\nmodel: %s\n", h.Message, model)
		return nil
	},
}

var createCapacity int

var createCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, err := setup(cmd)
		if err != nil {
			return err
		}
		room, err := client.CreateRoom(cmd.Context(), args[0], createCapacity)
		if err != nil {
			return err
		}
		content := fmt.Sprintf("Room created\n\nID:       %s\nName:     %s\nCapacity: %d\n\nsignmeet join %s --server %s --name <you>",
			titleStyle.Render(string(room.ID)), room.Name, room.Capacity, room.ID, cfg.Server)
		fmt.Println(boxStyle.Render(content))
		return nil
	},
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := setup(cmd)
		if err != nil {
			return err
		}
		rooms, err := client.ListRooms(cmd.Context())
		if err != nil {
			return err
		}
		if len(rooms) == 0 {
			fmt.Println(mutedStyle.Render("No rooms"))
			return nil
		}
		rows := make([][]string, 0, len(rooms))
		for _, r := range rooms {
			rows = append(rows, []string{
				string(r.ID),
				string(r.Name),
				fmt.Sprintf("%d/%d", r.ParticipantCount, r.Capacity),
			})
		}
		t := ltable.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(primary)).
			Headers("ID", "Name", "Participants").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == ltable.HeaderRow {
					return headerStyle
				}
				return cellStyle
			})
		fmt.Println(t.Render())
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info ROOM_ID",
	Short: "Show a room and its recent captions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := setup(cmd)
		if err != nil {
			return err
		}
		id := domain.RoomID(args[0])
		room, err := client.GetRoom(cmd.Context(), id)
		if err != nil {
			return err
		}
		captions, err := client.Captions(cmd.Context(), id)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.SetTitle(fmt.Sprintf("%s (%d/%d)", room.Name, len(room.Participants), room.Capacity))
		t.AppendHeader(table.Row{"Time", "Participant", "Caption", "Confidence"})
		for _, c := range captions {
			t.AppendRow(table.Row{
				c.Timestamp.Local().Format("15:04:05"),
				c.ParticipantName,
				c.Text,
				strconv.FormatFloat(c.Confidence*100, 'f', 0, 64) + "%",
			})
		}
		if len(captions) == 0 {
			t.AppendFooter(table.Row{"", "", "no captions yet", ""})
		}
		fmt.Println(t.Render())
		return nil
	},
}

func init() {
	createCmd.Flags().IntVar(&createCapacity, "capacity", 0, "maximum participants (server default when 0)")
}
