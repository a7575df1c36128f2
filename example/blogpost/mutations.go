package blogpost

import (
	"github.com/eventfold/entity-sourcing-go/entity"
)

// UpdateTitle changes the post's title. Fails with ErrPostArchived on an
// archived post.
func UpdateTitle(post *entity.Entity[State], title string) error {
	return entity.ApplyMutation(post, EventTitleUpdated, func(dispatch entity.Dispatch) error {
		if err := requireNotArchived(post); err != nil {
			return err
		}

		return dispatch(TitleUpdated{Title: title})
	})
}

// UpdateContent replaces the post's content. Fails with ErrPostArchived
// on an archived post.
func UpdateContent(post *entity.Entity[State], content string) error {
	return entity.ApplyMutation(post, EventContentUpdated, func(dispatch entity.Dispatch) error {
		if err := requireNotArchived(post); err != nil {
			return err
		}

		return dispatch(ContentUpdated{Content: content})
	})
}

// AddTag adds one tag to the post. Adding a tag the post already carries
// is a no-op. Fails with ErrPostArchived on an archived post.
func AddTag(post *entity.Entity[State], tag string) error {
	return entity.ApplyMutation(post, EventTagAdded, func(dispatch entity.Dispatch) error {
		if err := requireNotArchived(post); err != nil {
			return err
		}

		state, stateErr := post.State()
		if stateErr != nil {
			return stateErr
		}

		for _, existing := range state.Tags {
			if existing == tag {
				return nil
			}
		}

		return dispatch(TagAdded{Tag: tag})
	})
}

// Archive marks the post as archived. Archiving twice is a no-op.
func Archive(post *entity.Entity[State]) error {
	return entity.ApplyMutation(post, EventArchived, func(dispatch entity.Dispatch) error {
		state, stateErr := post.State()
		if stateErr != nil {
			return stateErr
		}

		if state.Archived {
			return nil
		}

		return dispatch(Archived{})
	})
}

func requireNotArchived(post *entity.Entity[State]) error {
	state, err := post.State()
	if err != nil {
		return err
	}

	if state.Archived {
		return ErrPostArchived
	}

	return nil
}
