// Package csvio reads snapshots from and writes results to CSV files.
package csvio

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/pkg/model"
)

// File names inside a snapshot directory.
const (
	TalksFile                = "talks.csv"
	PoolFile                 = "pool.csv"
	AssessorsFile            = "assessors.csv"
	SessionsFile             = "sessions.csv"
	RoomsFile                = "rooms.csv"
	PeriodsFile              = "periods.csv"
	AssessorAvailabilityFile = "assessor_availability.csv"
	TalkAvailabilityFile     = "talk_availability.csv"
	RoomAvailabilityFile     = "room_availability.csv"

	RankingsFile = "rankings.csv"
	FacultyFile  = "faculty.csv"
	ProjectsFile = "projects.csv"
	MarkersFile  = "markers.csv"

	PlacementsFile  = "placements.csv"
	EnumerationFile = "enumeration.csv"
)

// SetDelimiter changes the field separator of every file read afterwards.
func SetDelimiter(delim rune) {
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = delim
		return r
	})
}

// loader reads several files of one directory and collects every failure.
type loader struct {
	dir string
	err error
}

func (l *loader) read(name string, out interface{}, optional bool) {
	path := filepath.Join(l.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return
		}
		l.err = multierr.Append(l.err, errors.Wrapf(err, "failed to open %s, please make sure the file exists", path))
		return
	}
	defer f.Close()
	if err := gocsv.UnmarshalFile(f, out); err != nil {
		l.err = multierr.Append(l.err, errors.Wrapf(err, "failed to parse %s, please check the data integrity and format", path))
	}
}

// LoadSchedule reads a scheduling snapshot from dir. Slots are generated from
// sessions and rooms. Entities are ordered by id.
func LoadSchedule(dir string) (*model.ScheduleSnapshot, error) {
	l := &loader{dir: dir}
	var (
		talks       []*model.Talk
		pool        []*model.PoolCSV
		assessors   []*model.Assessor
		sessions    []*model.Session
		rooms       []*model.Room
		periods     []*model.Period
		assessorAvl []*model.AvailabilityCSV
		talkAvl     []*model.AvailabilityCSV
		roomAvl     []*model.AvailabilityCSV
	)
	l.read(TalksFile, &talks, false)
	l.read(PoolFile, &pool, true)
	l.read(AssessorsFile, &assessors, false)
	l.read(SessionsFile, &sessions, false)
	l.read(RoomsFile, &rooms, false)
	l.read(PeriodsFile, &periods, false)
	l.read(AssessorAvailabilityFile, &assessorAvl, true)
	l.read(TalkAvailabilityFile, &talkAvl, true)
	l.read(RoomAvailabilityFile, &roomAvl, true)
	if l.err != nil {
		return nil, l.err
	}

	byTalk := make(map[int64]*model.Talk, len(talks))
	for _, t := range talks {
		byTalk[t.ID] = t
	}
	for _, p := range pool {
		if t, ok := byTalk[p.TalkID]; ok {
			t.Pool = append(t.Pool, p.AssessorID)
		}
	}

	snap := &model.ScheduleSnapshot{Talks: talks, Assessors: assessors, Periods: periods}
	var err error
	if snap.AssessorAvailability, err = model.NewAvailabilityTable(assessorAvl); err != nil {
		return nil, errors.Wrap(err, AssessorAvailabilityFile)
	}
	if snap.TalkAvailability, err = model.NewAvailabilityTable(talkAvl); err != nil {
		return nil, errors.Wrap(err, TalkAvailabilityFile)
	}
	roomStatus, err := model.NewAvailabilityTable(roomAvl)
	if err != nil {
		return nil, errors.Wrap(err, RoomAvailabilityFile)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	snap.Slots = model.GenerateSlots(sessions, rooms, roomStatus)

	sort.Slice(snap.Talks, func(i, j int) bool { return snap.Talks[i].ID < snap.Talks[j].ID })
	sort.Slice(snap.Assessors, func(i, j int) bool { return snap.Assessors[i].ID < snap.Assessors[j].ID })
	sort.Slice(snap.Periods, func(i, j int) bool { return snap.Periods[i].ID < snap.Periods[j].ID })
	return snap, nil
}

// LoadMatching reads a matching snapshot from dir. Selectors are the distinct
// selector ids of the rankings file.
func LoadMatching(dir string) (*model.MatchingSnapshot, error) {
	l := &loader{dir: dir}
	var (
		rankings []*model.RankingCSV
		faculty  []*model.Faculty
		projects []*model.Project
		markers  []*model.MarkerCSV
		periods  []*model.Period
	)
	l.read(RankingsFile, &rankings, false)
	l.read(FacultyFile, &faculty, false)
	l.read(ProjectsFile, &projects, false)
	l.read(MarkersFile, &markers, true)
	l.read(PeriodsFile, &periods, false)
	if l.err != nil {
		return nil, l.err
	}

	bySelector := make(map[int64]*model.Selector)
	var selectors []*model.Selector
	for _, r := range rankings {
		s, ok := bySelector[r.SelectorID]
		if !ok {
			s = &model.Selector{ID: r.SelectorID, Rankings: make(map[int64]int)}
			bySelector[r.SelectorID] = s
			selectors = append(selectors, s)
		}
		s.Rankings[r.ProjectID] = r.Rank
	}
	byProject := make(map[int64]*model.Project, len(projects))
	for _, p := range projects {
		byProject[p.ID] = p
	}
	for _, m := range markers {
		if p, ok := byProject[m.ProjectID]; ok {
			p.Markers = append(p.Markers, m.FacultyID)
		}
	}

	sort.Slice(selectors, func(i, j int) bool { return selectors[i].ID < selectors[j].ID })
	sort.Slice(faculty, func(i, j int) bool { return faculty[i].ID < faculty[j].ID })
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	sort.Slice(periods, func(i, j int) bool { return periods[i].ID < periods[j].ID })
	return &model.MatchingSnapshot{Selectors: selectors, Faculty: faculty, Projects: projects, Periods: periods}, nil
}

// LoadPlacements reads placements written by WritePlacements.
func LoadPlacements(r io.Reader) ([]model.Placement, error) {
	var rows []*model.PlacementCSV
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, errors.Wrap(err, "parsing placements")
	}
	return model.GroupPlacements(rows), nil
}

// LoadEnumeration reads enumeration rows written by WriteEnumeration.
func LoadEnumeration(r io.Reader) ([]enumerate.Row, error) {
	var rows []*enumerate.Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, errors.Wrap(err, "parsing enumeration")
	}
	out := make([]enumerate.Row, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out, nil
}
