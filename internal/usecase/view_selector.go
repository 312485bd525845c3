package usecase

import (
	"AnomalyReplay/internal/domain/models"
	"AnomalyReplay/internal/services/windowing"
)

// SelectView picks what the render sinks should show for the session.
//
//   - running with data: live snapshot, prev marks where the last tick started
//     so newly crossed consensus points can be flagged
//   - not running, cursor > 0: analysis view over the prefix, narrowed by zoom
//   - otherwise: idle
//
// Running at cursor 0 (play pressed, first tick not yet applied) is idle too.
func SelectView(s *Session, prev int, zoom models.TimeRange) (*models.View, error) {
	v := &models.View{Status: s.Status()}
	switch {
	case s.Running() && s.Index() > 0:
		live, err := windowing.BuildLive(s.Dataset(), prev, s.Index(), s.WindowSize())
		if err != nil {
			return nil, err
		}
		v.Mode = models.ViewLive
		v.Live = live
	case !s.Running() && s.Index() > 0:
		a, err := windowing.BuildAnalysis(s.Dataset(), s.Index(), zoom)
		if err != nil {
			return nil, err
		}
		v.Mode = models.ViewAnalysis
		v.Analysis = a
	default:
		v.Mode = models.ViewIdle
	}
	return v, nil
}
